package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/eventlog"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/logx"
	"fortuneteller/pkg/orchestrator"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/termui"
)

const goodbye = "感谢使用霄占命理系统，再见！"

func addReadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("system", "s", "", "Run one reading with this system and exit")
	cmd.Flags().StringToStringP("input", "i", nil, "Input field for --system, as name=value (repeatable)")
	cmd.Flags().StringSlice("topic", nil, "Follow-up topic labels to expand after a --system reading")
	cmd.Flags().Bool("no-export", false, "Do not write the reading to the export directory")
}

// reader runs readings on a terminal for one user.
type reader struct {
	app       *app
	orch      *orchestrator.Orchestrator
	printer   *termui.Printer
	prompter  *termui.Prompter
	exportDir string
	sessionID string
	readingID string
}

func runRead(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	printer, err := termui.NewPrinter(os.Stdout)
	if err != nil {
		return err
	}
	storage, err := a.cfg.Storage()
	if err != nil {
		return err
	}
	if noExport, _ := cmd.Flags().GetBool("no-export"); noExport {
		storage.ExportDir = ""
	}

	r := &reader{
		app:       a,
		orch:      orchestrator.New(a.plugins, a.llm),
		printer:   printer,
		prompter:  termui.NewPrompter(os.Stdin, os.Stdout, printer.Theme()),
		exportDir: storage.ExportDir,
		sessionID: uuid.NewString(),
	}

	if system, _ := cmd.Flags().GetString("system"); system != "" {
		inputs, _ := cmd.Flags().GetStringToString("input")
		topics, _ := cmd.Flags().GetStringSlice("topic")
		return r.once(cmd.Context(), system, fortune.RawInput(inputs), topics)
	}
	return r.interactive(cmd.Context())
}

// interruptible cancels the returned context on Ctrl-C so a slow call can be abandoned
// without leaving the program.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}

// wait runs fn behind a spinner.
func wait[T any](ctx context.Context, theme *termui.Theme, fn func(context.Context) (T, error)) (T, error) {
	ctx, stop := interruptible(ctx)
	defer stop()
	spin := termui.NewSpinner(os.Stdout, theme, "霄占命理师正在沉思")
	spin.Start()
	defer spin.Stop()
	return fn(ctx)
}

func (r *reader) once(ctx context.Context, system string, raw fortune.RawInput, topics []string) error {
	if err := r.reading(ctx, system, raw); err != nil {
		return err
	}
	for _, topic := range topics {
		if err := r.followup(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) interactive(ctx context.Context) error {
	settings, err := r.app.cfg.LLM()
	if err != nil {
		return err
	}
	r.printer.Welcome()
	r.printer.LLMInfo(settings)

	systems := r.app.plugins.InfoList()
	if len(systems) == 0 {
		return fmt.Errorf("no divination systems are enabled")
	}

	for {
		r.printer.Systems(systems)
		d, err := r.prompter.ChooseSystem(systems)
		if errors.Is(err, termui.ErrBack) || errors.Is(err, io.EOF) {
			return r.bye()
		}
		if err != nil {
			return err
		}

		sys, _ := r.app.plugins.Get(d.Name)
		raw, err := r.prompter.CollectInputs(d, sys.RequiredInputs())
		if errors.Is(err, io.EOF) {
			return r.bye()
		}
		if err != nil {
			return err
		}

		if err := r.reading(ctx, d.Name, raw); err != nil {
			if !recoverable(err) {
				return err
			}
			r.printer.Error(err)
			continue
		}
		if err := r.topicMenu(ctx); errors.Is(err, io.EOF) {
			return r.bye()
		} else if err != nil {
			return err
		}
	}
}

func (r *reader) bye() error {
	r.printer.Info("")
	if err := printUsage(os.Stdout, r.app.registry, logx.IsDebugEnabled()); err != nil {
		r.printer.Error(err)
	}
	r.printer.Info("%s", goodbye)
	return nil
}

// recoverable reports whether the interactive loop can go on after err.
func recoverable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput, apperrors.KindProcessing, apperrors.KindRetryExhausted,
		apperrors.KindFatalLLM, apperrors.KindCanceled, apperrors.KindInvalidTopic:
		return true
	default:
		return false
	}
}

func (r *reader) reading(ctx context.Context, system string, raw fortune.RawInput) error {
	res, err := wait(ctx, r.printer.Theme(), func(ctx context.Context) (*orchestrator.ReadingResult, error) {
		return r.orch.PerformReading(ctx, system, raw)
	})
	if err != nil {
		return err
	}

	if sess, ok := r.orch.Session(); ok {
		if sys, found := r.app.plugins.Get(system); found {
			r.printer.Display(sys.DisplayProcessedData(sess.Processed))
		}
	}

	savedTo := ""
	if r.exportDir != "" {
		if savedTo, err = persistence.ExportJSON(r.exportDir, res); err != nil {
			r.printer.Error(err)
		}
	}
	if r.readingID, err = r.app.archive.SaveReading(ctx, r.sessionID, "", res); err != nil {
		r.printer.Error(err)
	}
	r.log(eventlog.Event{Type: eventlog.TypeReading, SystemName: system, ReadingID: r.readingID, Text: res.FullText})
	return r.printer.Reading(res, savedTo)
}

func (r *reader) followup(ctx context.Context, topic string) error {
	res, err := wait(ctx, r.printer.Theme(), func(ctx context.Context) (*orchestrator.ReadingResult, error) {
		return r.orch.PerformFollowupReading(ctx, topic)
	})
	if err != nil {
		return err
	}
	id, err := r.app.archive.SaveReading(ctx, r.sessionID, r.readingID, res)
	if err != nil {
		r.printer.Error(err)
	}
	r.log(eventlog.Event{
		Type: eventlog.TypeFollowup, SystemName: res.Metadata.SystemName, Topic: topic, ReadingID: id, Text: res.FullText,
	})
	return r.printer.Followup(res)
}

// log appends ev to the event log when one is configured.
func (r *reader) log(ev eventlog.Event) {
	ev.SessionID = r.sessionID
	if err := r.app.events.Write(ev); err != nil {
		logx.Warnf("event log: %v", err)
	}
}

func (r *reader) topicMenu(ctx context.Context) error {
	for {
		topics := r.orch.Topics()
		r.printer.TopicMenu(topics)
		topic, err := r.prompter.ChooseTopic(topics)
		if errors.Is(err, termui.ErrBack) {
			return nil
		}
		if err != nil {
			return err
		}

		if orchestrator.IsChatTopic(topic) {
			if err := r.chat(ctx); err != nil {
				return err
			}
			continue
		}
		if err := r.followup(ctx, topic); err != nil {
			if !recoverable(err) {
				return err
			}
			r.printer.Error(err)
		}
	}
}

func (r *reader) chat(ctx context.Context) error {
	name := "命理师"
	if sess, ok := r.orch.Session(); ok {
		if sys, found := r.app.plugins.Get(sess.SystemName); found {
			name = sys.DisplayName() + "命理师"
		}
	}
	r.printer.ChatIntro(name)

	type opened struct {
		chat     *orchestrator.Chat
		greeting string
	}
	o, err := wait(ctx, r.printer.Theme(), func(ctx context.Context) (opened, error) {
		c, greeting, err := r.orch.StartChat(ctx)
		return opened{c, greeting}, err
	})
	if err != nil {
		r.printer.Info("霄占思考过度走神了: %v", err)
		return nil
	}
	c := o.chat
	defer c.Close()
	r.log(eventlog.Event{Type: eventlog.TypeChatReply, Text: o.greeting})
	r.printer.Say(o.greeting)

	for {
		msg, err := r.prompter.Line("您: ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if orchestrator.IsExitWord(msg) {
			r.printer.Say(orchestrator.ChatFarewell)
			return nil
		}
		if strings.TrimSpace(msg) == "" {
			continue
		}

		r.log(eventlog.Event{Type: eventlog.TypeChatUser, Text: msg})
		reply, err := wait(ctx, r.printer.Theme(), func(ctx context.Context) (string, error) {
			return c.Send(ctx, msg)
		})
		if err != nil {
			r.printer.Info("霄占思考过度走神了: %v", err)
			continue
		}
		r.log(eventlog.Event{Type: eventlog.TypeChatReply, Text: reply})
		r.printer.Say(reply)
	}
}
