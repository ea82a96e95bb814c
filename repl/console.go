package repl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/alexeyco/simpletable"
	"github.com/fatih/color"

	"github.com/rudderlabs/rudder-tunnel/tunnel"
)

const timeLayout = "15:04:05"

// Console renders user facing output. It is not a logger: lines written here are
// the answer to a command.
type Console struct {
	w io.Writer

	title   *color.Color
	success *color.Color
	notice  *color.Color
	failure *color.Color
	faint   *color.Color
	accent  *color.Color
	link    *color.Color
}

func NewConsole(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:       w,
		title:   color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen),
		notice:  color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		faint:   color.New(color.FgHiBlack),
		accent:  color.New(color.FgCyan),
		link:    color.New(color.Bold, color.Underline),
	}
	if noColor {
		for _, cc := range []*color.Color{c.title, c.success, c.notice, c.failure, c.faint, c.accent, c.link} {
			cc.DisableColor()
		}
	}
	return c
}

func (c *Console) Banner(authConfigured bool, demoPort int) {
	_, _ = c.title.Fprintln(c.w, "\n=== Ngrok Tunnel Manager ===")
	c.Help(demoPort)
	if authConfigured {
		_, _ = c.success.Fprintf(c.w, "✓ ngrok auth token configured\n\n")
		return
	}
	_, _ = c.notice.Fprintln(c.w, "⚠ ngrok auth token not configured (anonymous mode)")
	_, _ = c.faint.Fprintf(c.w, "  set %s in the environment or a .env file\n\n", tunnel.AuthTokenKey)
}

// Help lists the commands, demoPort is the port used by a bare demo command.
func (c *Console) Help(demoPort int) {
	_, _ = c.faint.Fprintln(c.w, "\nCommands:")
	for _, line := range [][2]string{
		{"create <port> [key=value ...]", "open a tunnel to the local port (proto, domain, auth, region, metadata)"},
		{"demo [port]", fmt.Sprintf("start the demo server and tunnel it (default port: %d)", demoPort)},
		{"close <port>", "close the tunnel of the port"},
		{"list", "list open tunnels"},
		{"exit | quit", "close every tunnel and exit"},
		{"help | ?", "show this help"},
	} {
		_, _ = fmt.Fprintf(c.w, "  %-30s", line[0])
		_, _ = c.faint.Fprintf(c.w, " %s\n", line[1])
	}
	_, _ = fmt.Fprintln(c.w)
}

func (c *Console) Prompt() {
	_, _ = c.accent.Fprint(c.w, "> ")
}

func (c *Console) Created(port int, url string) {
	_, _ = c.success.Fprintln(c.w, "✓ Tunnel created")
	_, _ = c.accent.Fprint(c.w, "Public URL: ")
	_, _ = c.link.Fprintln(c.w, url)
	_, _ = c.faint.Fprint(c.w, "Local endpoint: ")
	_, _ = fmt.Fprintf(c.w, "http://localhost:%d\n", port)
}

func (c *Console) Info(format string, args ...interface{}) {
	_, _ = c.faint.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Notice(format string, args ...interface{}) {
	_, _ = c.notice.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Success(format string, args ...interface{}) {
	_, _ = c.success.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Error(err error) {
	_, _ = c.failure.Fprintf(c.w, "Error: %v\n", err)
}

func (c *Console) Sessions(sessions []tunnel.Session) {
	if len(sessions) == 0 {
		c.Info("No active tunnels")
		return
	}

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Port"},
			{Align: simpletable.AlignCenter, Text: "Public URL"},
			{Align: simpletable.AlignCenter, Text: "Proto"},
			{Align: simpletable.AlignCenter, Text: "Since"},
		},
	}
	for _, s := range sessions {
		proto := s.Options.Proto
		if proto == "" {
			proto = tunnel.ProtoHTTP
		}
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Align: simpletable.AlignRight, Text: strconv.Itoa(s.Port)},
			{Align: simpletable.AlignLeft, Text: s.URL},
			{Align: simpletable.AlignLeft, Text: proto},
			{Align: simpletable.AlignLeft, Text: s.CreatedAt.Format(timeLayout)},
		})
	}
	table.SetStyle(simpletable.StyleCompactLite)

	_, _ = c.accent.Fprintln(c.w, "\nActive tunnels:")
	_, _ = fmt.Fprintln(c.w, table.String())
}
