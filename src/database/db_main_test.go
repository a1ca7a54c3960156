package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutexecutor/src/database/migrations"
	"breakoutexecutor/src/model"
)

func TestOpenSQLiteMigratesOnce(t *testing.T) {
	config := Config{
		Driver:          DriverSQLite,
		DatabaseURLMain: filepath.Join(t.TempDir(), "engine.db"),
		GormLogLevel:    1,
	}

	db, err := Open(config)
	require.NoError(t, err)

	var params int64
	require.NoError(t, db.Model(&model.Parameter{}).Count(&params).Error)
	assert.Equal(t, int64(4), params)

	require.NoError(t, db.Model(&model.Parameter{}).Where("1 = 1").Update("value", "7").Error)
	require.NoError(t, Close(db))

	// reopening keeps edited parameters; the seed is recorded as applied
	db, err = Open(config)
	require.NoError(t, err)
	defer func() { _ = Close(db) }()

	var p model.Parameter
	require.NoError(t, db.Where(&model.Parameter{Key: model.ParamLookback}).First(&p).Error)
	assert.Equal(t, "7", p.Value)

	var applied int64
	require.NoError(t, db.Model(&migrations.DataMigration{}).Count(&applied).Error)
	assert.Equal(t, int64(1), applied)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
