package orchestrator

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress wraps a single mpb bar. A nil *progress is a valid no-op.
type progress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newProgress(out io.Writer, name string, total int) *progress {
	if out == nil || total <= 0 {
		return nil
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
	return &progress{p: p, bar: bar}
}

func (pr *progress) Increment() {
	if pr == nil {
		return
	}
	pr.bar.Increment()
}

// Wait flushes the bar. An interrupted stage leaves the bar short of its
// total, so it is aborted instead of waited on forever.
func (pr *progress) Wait() {
	if pr == nil {
		return
	}
	if !pr.bar.Completed() {
		pr.bar.Abort(false)
	}
	pr.p.Wait()
}
