package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"kmpls/internal/check"
	"kmpls/internal/session"
	"kmpls/internal/ui"
)

type checkOutcome struct {
	result *check.Result
	err    error
}

func runCheckWithUI(ctx context.Context, title string, sess *session.Session, req check.Request) (*check.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	files := check.Files(sess, req)
	events := make(chan check.Event, 256)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		reqCopy := req
		reqCopy.Progress = check.ChannelSink{Ch: events}
		res, err := check.Run(ctx, sess, reqCopy)
		outcomeCh <- checkOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	cancel()
	// the program may quit early; keep the producer unblocked
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
