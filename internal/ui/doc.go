// Package ui provides the terminal output of the aqualogic CLI.
//
// Two kinds of output live here. One-shot components (Header, Result,
// Printer) render a styled banner or result box and return. The Dashboard is
// a Bubble Tea model that shows readings, indicators, the LCD line and key
// events live while the decoder runs.
//
// # Feeding the Dashboard
//
// The dashboard never touches the decoder directly. The caller wires the
// pipeline to the program with messages:
//
//	p := ui.NewProgram(ctx, ui.NewDashboard(src, ctrl.Stats))
//	updates, unsubscribe := ctrl.Store().Subscribe()
//	defer unsubscribe()
//	go ui.Forward(ctx, p, updates)
//	go func() { p.Send(ui.DoneMsg{Err: ctrl.Run(ctx, conn)}) }()
//	_, err := p.Run()
//
// # Logging Integration
//
// zap output would corrupt the full-screen view, so the monitor command
// leaves logging silent unless AQUALOGIC_LOG_LEVEL is set.
package ui
