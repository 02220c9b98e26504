// Command relay-client is the reference CLI for the client command
// surface: it exercises start_send, start_receive, accept_transfer and
// cancel_transfer end to end against a real rendezvous server, with a
// genuine PAKE/fingerprint exchange rather than a hardcoded demo key.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/quantarax/relay/internal/audit"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/orchestrator"
)

func main() {
	send := flag.Bool("send", false, "offer files for transfer")
	receive := flag.Bool("receive", false, "redeem a transfer code")
	signalServer := flag.String("signal-server", "wss://relay.example.org/ws", "rendezvous server WebSocket base URL")
	saveDir := flag.String("save-dir", ".", "directory to save received files into")
	auditPath := flag.String("audit-log", "", "path to an append-only JSON-lines audit log, empty disables it")
	quiet := flag.Bool("quiet", false, "skip the interactive accept confirmation and accept automatically")
	execOnComplete := flag.String("exec-on-complete", "", "shell command to run after a transfer finishes")
	flag.Parse()

	out := colorable.NewColorableStdout()
	isTTY := isatty.IsTerminal(os.Stdout.Fd())
	logger := observability.NewLogger("relay-client", "dev", os.Stderr)

	var auditLog *audit.Log
	if *auditPath != "" {
		l, err := audit.OpenFile(*auditPath)
		if err != nil {
			logger.Error(err, "failed to open audit log")
			os.Exit(1)
		}
		defer l.Close()
		auditLog = l
	}

	orch := orchestrator.New(*signalServer, *saveDir, logger, auditLog, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	switch {
	case *send:
		runSend(ctx, orch, flag.Args(), out, isTTY, *execOnComplete)
	case *receive:
		runReceive(ctx, orch, flag.Args(), out, isTTY, *quiet, *execOnComplete)
	default:
		fmt.Fprintln(os.Stderr, "usage: relay-client -send FILE... | -receive CODE")
		os.Exit(2)
	}
}

func runSend(ctx context.Context, orch *orchestrator.Orchestrator, filePaths []string, out *os.File, isTTY bool, execOnComplete string) {
	if len(filePaths) == 0 {
		fmt.Fprintln(os.Stderr, "relay-client -send: at least one file path is required")
		os.Exit(2)
	}

	result, err := orch.StartSend(ctx, filePaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start send: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(out, "transfer code: %s\n", result.Code)

	sub := orch.Subscribe(result.SessionID)
	defer orch.Unsubscribe(sub)
	watchEvents(ctx, sub, out, isTTY, execOnComplete)
}

func runReceive(ctx context.Context, orch *orchestrator.Orchestrator, args []string, out *os.File, isTTY, quiet bool, execOnComplete string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "relay-client -receive: a single transfer code is required")
		os.Exit(2)
	}
	code := args[0]

	sessionID, err := orch.StartReceive(ctx, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start receive: %v\n", err)
		os.Exit(1)
	}

	sub := orch.Subscribe(sessionID)
	defer orch.Unsubscribe(sub)

	for event := range sub.Channel {
		if event.Type == orchestrator.EventFileOffer {
			printOffer(out, event)
			accept := quiet || confirmAccept(isTTY)
			if err := orch.AcceptTransfer(sessionID, accept); err != nil {
				fmt.Fprintf(os.Stderr, "accept_transfer failed: %v\n", err)
			}
			continue
		}
		if done := printEvent(out, event, isTTY); done {
			runHook(execOnComplete)
			return
		}
	}
}

func watchEvents(ctx context.Context, sub *orchestrator.Subscription, out *os.File, isTTY bool, execOnComplete string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Channel:
			if !ok {
				return
			}
			if done := printEvent(out, event, isTTY); done {
				runHook(execOnComplete)
				return
			}
		}
	}
}

func printOffer(out *os.File, event orchestrator.ProgressEvent) {
	fmt.Fprintf(out, "offer: %d file(s), %s total\n", len(event.Files), humanize.Bytes(event.BytesTotal))
	for _, f := range event.Files {
		fmt.Fprintf(out, "  %s (%s)\n", f.Name, humanize.Bytes(f.Size))
	}
}

// printEvent renders one ProgressEvent and reports whether the
// transfer just reached a terminal state.
func printEvent(out *os.File, event orchestrator.ProgressEvent, isTTY bool) bool {
	switch event.Type {
	case orchestrator.EventStateChanged:
		fmt.Fprintf(out, "state: %s\n", event.State)
		return event.State == "Completed" || event.State == "Cancelled" || event.State == "Errored" || event.State == "Declined"
	case orchestrator.EventTransferProgress:
		if isTTY {
			fmt.Fprintf(out, "\r%s / %s  %s/s  eta %.0fs   ",
				humanize.Bytes(event.BytesTransferred), humanize.Bytes(event.BytesTotal),
				humanize.Bytes(uint64(event.SpeedBps)), event.ETASeconds)
		}
	case orchestrator.EventFileCompleted:
		fmt.Fprintf(out, "\nverified: %s\n", event.FileName)
	case orchestrator.EventError:
		fmt.Fprintf(out, "\nerror (%s): %s\n", event.ErrorKind, event.ErrorMessage)
		return true
	case orchestrator.EventConnectionTypeChanged:
		fmt.Fprintf(out, "transport: %s\n", event.Transport)
	}
	return false
}

func confirmAccept(isTTY bool) bool {
	if !isTTY {
		return true
	}
	fmt.Print("accept this transfer? [y/N] ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}
	return false
}

func runHook(cmdline string) {
	if cmdline == "" {
		return
	}
	args, err := shellquote.Split(cmdline)
	if err != nil || len(args) == 0 {
		return
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	_ = cmd.Run()
}
