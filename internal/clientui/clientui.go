// Package clientui is the terminal front end for internal/client: a
// scrollable chatbox plus a single input line, commands prefixed with
// "/" for directory and private-message operations, everything else
// sent as a public_chat.
package clientui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"olafchat/internal/client"
	"olafchat/internal/logging"
)

// UI is the running terminal application wrapping one client.Client.
type UI struct {
	app     *tview.Application
	chatbox *tview.TextView
	input   *tview.InputField

	mu sync.RWMutex
	c  *client.Client // set by Attach; may still be nil while Handler callbacks fire during Dial
}

// New builds the UI's widgets up front, before a client exists: dialling
// starts delivering inbound events (via the Handler callbacks) as soon
// as client.Dial is called, and New itself is passed to Dial as the
// Handler, so the widgets must already be live by the time the caller
// can even construct the client. Call Attach once dialling succeeds,
// then Run to block and start rendering.
func New() *UI {
	u := &UI{app: tview.NewApplication()}

	u.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	u.chatbox.SetBorder(true).SetTitle(" connecting... ")

	u.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	u.input.SetBorder(true).SetTitle(" /list, /msg <fp,fp,...> <text>, or plain text for public_chat ")

	u.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := u.input.GetText()
		u.input.SetText("")
		if text == "" {
			return
		}
		go u.handleCommand(text)
	})

	return u
}

// Attach binds a successfully dialled client to the UI, enabling the
// send commands and updating the chatbox title to the client's
// fingerprint. Must be called before Run.
func (u *UI) Attach(c *client.Client) {
	u.mu.Lock()
	u.c = c
	u.mu.Unlock()
	u.chatbox.SetTitle(fmt.Sprintf(" %s ", c.Fingerprint()))
}

// client returns the attached client, or nil if a Handler callback
// fired during client.Dial before Attach ran.
func (u *UI) client() *client.Client {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.c
}

// Run blocks, rendering the UI until the user quits (Ctrl-C). A closed
// connection does not stop it.
func (u *UI) Run() error {
	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.chatbox, 0, 1, false).
		AddItem(u.input, 3, 0, true)

	return u.app.SetRoot(layout, true).SetFocus(u.input).Run()
}

func (u *UI) handleCommand(text string) {
	c := u.client()
	switch {
	case text == "/list":
		if err := c.RequestDirectory(); err != nil {
			u.printLine(fmt.Sprintf("[red]directory refresh failed:[-] %v", err))
		}
		u.printLine("[blue]known fingerprints:[-] " + strings.Join(c.KnownFingerprints(), ", "))
	case strings.HasPrefix(text, "/msg "):
		u.handleMsgCommand(strings.TrimPrefix(text, "/msg "))
	default:
		if err := c.SendPublicChat(text); err != nil {
			u.printLine(fmt.Sprintf("[red]send failed:[-] %v", err))
			return
		}
		u.printLine(fmt.Sprintf("[yellow]you (public):[-] %s", text))
	}
}

func (u *UI) handleMsgCommand(rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		u.printLine("[red]usage:[-] /msg <fp,fp,...> <text>")
		return
	}
	recipients := strings.Split(parts[0], ",")
	if err := u.client().SendChat(recipients, parts[1]); err != nil {
		u.printLine(fmt.Sprintf("[red]send failed:[-] %v", err))
		return
	}
	u.printLine(fmt.Sprintf("[yellow]you (private to %s):[-] %s", parts[0], parts[1]))
}

// OnPublicChat implements client.Handler.
func (u *UI) OnPublicChat(e client.PublicChatEvent) {
	u.printLine(fmt.Sprintf("[green]%s (public):[-] %s", e.Sender, e.Message))
}

// OnChat implements client.Handler.
func (u *UI) OnChat(e client.ChatEvent) {
	sender := ""
	if len(e.Participants) > 0 {
		sender = e.Participants[0]
	}
	u.printLine(fmt.Sprintf("[green]%s (private):[-] %s", sender, e.Message))
}

// OnDirectoryUpdated implements client.Handler. It can fire before
// Attach (client.Dial requests the directory before returning the
// Client for Attach to receive), in which case there is nothing yet to
// report and the event is dropped.
func (u *UI) OnDirectoryUpdated() {
	c := u.client()
	if c == nil {
		return
	}
	logging.Debug("directory updated", zap.Int("known", len(c.KnownFingerprints())))
}

func (u *UI) printLine(line string) {
	u.app.QueueUpdateDraw(func() {
		fmt.Fprintln(u.chatbox, line)
		u.chatbox.ScrollToEnd()
	})
}
