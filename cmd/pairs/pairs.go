// Package pairs implements the pair configuration commands.
package pairs

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"breakoutexecutor/src/repository"
	"breakoutexecutor/src/seed"
)

type Pairs struct {
	Log *logrus.Entry
	DB  *gorm.DB
}

// Import loads a YAML pairs file and upserts its pairs and parameters.
func (p *Pairs) Import(ctx context.Context, filename string) error {
	f, err := seed.LoadPairsFile(filename)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, f, repository.NewPairRepositoryWithDB(p.DB), repository.NewParameterRepositoryWithDB(p.DB)); err != nil {
		return err
	}
	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{"file": filename, "pairs": len(f.Pairs)}).Info("Pairs imported")
	}
	return nil
}

// List prints every configured pair and the strategy parameters.
func (p *Pairs) List(ctx context.Context, w io.Writer) error {
	pairs, err := repository.NewPairRepositoryWithDB(p.DB).ListAll(ctx)
	if err != nil {
		return err
	}
	params, err := repository.NewParameterRepositoryWithDB(p.DB).List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tENABLED\tLEVERAGE\tTP%\tSL%\tCANCEL_AFTER")
	for _, pc := range pairs {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%g\t%g\t%ds\n", pc.Symbol, pc.Enabled, pc.Leverage, pc.TakeProfitPct, pc.StopLossPct, pc.CancelAfter)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PARAMETER\tVALUE")
	for _, prm := range params {
		fmt.Fprintf(tw, "%s\t%s\n", prm.Key, prm.Value)
	}
	return tw.Flush()
}
