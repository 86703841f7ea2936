package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
	"github.com/ormasoftchile/promptctl/pkg/logquery"
)

// Run opens the viewer on today's file in dir and feeds it every entry
// that passes f until the user quits or ctx is cancelled.
func Run(ctx context.Context, dir string, f logquery.Filter, cfg logflow.ConsoleConfig, opts ...logquery.Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(logquery.TodayFile(dir, time.Now()), cfg)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := logquery.Follow(gctx, dir, f, func(e logflow.Entry) error {
			p.Send(EntryMsg{Entry: e})
			return nil
		}, opts...)
		if err != nil {
			p.Send(ErrMsg{Err: err})
		}
		return err
	})

	_, runErr := p.Run()
	cancel()
	followErr := g.Wait()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("log viewer: %w", runErr)
	}
	if followErr != nil && !errors.Is(followErr, context.Canceled) {
		return fmt.Errorf("follow logs: %w", followErr)
	}
	return nil
}
