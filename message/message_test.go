package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderColors(t *testing.T) {
	assert.Equal(t, "\x1b[31mfail\x1b[0m", Render("[red]fail[/all]"))
	assert.Equal(t, "\x1b[1mbold\x1b[22m", Render("[b]bold[/b]"))
	assert.Equal(t, "\x1b[44mon blue\x1b[49m", Render("[bgblue]on blue[/bg]"))
}

func TestRenderClosingColorTags(t *testing.T) {
	// Closing a color tag resets just that plane.
	assert.Equal(t, "\x1b[32mok\x1b[39m", Render("[green]ok[/green]"))
	assert.Equal(t, "\x1b[91mhot\x1b[39m", Render("[hired]hot[/hired]"))
	assert.Equal(t, "\x1b[103mwarn\x1b[49m", Render("[bgyellow]warn[/bgyellow]"))
}

func TestRenderUnknownTagLeftAlone(t *testing.T) {
	assert.Equal(t, "[nope]text[/nope]", Render("[nope]text[/nope]"))
}

func TestRenderAliases(t *testing.T) {
	assert.Equal(t, Render("[hipurple]x[/all]"), Render("[pink]x[/all]"))
	assert.Equal(t, Render("[hibrown]x[/all]"), Render("[yellow]x[/all]"))
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "fail and ok", Strip("[red]fail[/red] and [green]ok[/all]"))
	assert.Equal(t, "plain", Strip("plain"))
	assert.Equal(t, "[nope]kept", Strip("[nope]kept"))
}

func TestPrintStripsWithoutTerminal(t *testing.T) {
	var out, errOut bytes.Buffer
	m := New()
	m.stdout = &out
	m.stderr = &errOut
	m.isTTY = false

	m.Print("[green]done[/all]")
	m.PrintErr("[red]broken[/all]")
	assert.Equal(t, "done\n", out.String())
	assert.Equal(t, "broken\n", errOut.String())
}

func TestPrintRendersOnTerminal(t *testing.T) {
	var out bytes.Buffer
	m := New()
	m.stdout = &out
	m.isTTY = true

	m.Print("[red]x[/all]")
	assert.Equal(t, "\x1b[31mx\x1b[0m\n", out.String())
}

func TestPrintInline(t *testing.T) {
	var out bytes.Buffer
	m := New()
	m.stdout = &out
	m.isTTY = false

	m.PrintInline("\r[green]50%[/all]")
	m.PrintInline("\r[green]100%[/all]")
	assert.Equal(t, "\r50%\r100%", out.String())

	out.Reset()
	m.isTTY = true
	m.PrintInline("\r[green]done[/all]")
	assert.Equal(t, "\r\x1b[32mdone\x1b[0m", out.String())
}

func TestQuietSuppressesOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	m := New(Quiet())
	m.stdout = &out
	m.stderr = &errOut

	m.Print("hidden")
	m.PrintErr("also hidden")
	m.PrintInline("\rhidden too")
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())
}

func TestMailRequiresServerAndRecipients(t *testing.T) {
	err := Mail(MailConfig{}, "subject", "body")
	assert.ErrorContains(t, err, "no SMTP server")

	err = Mail(MailConfig{SMTPAddr: "localhost:25"}, "subject", "body")
	assert.ErrorContains(t, err, "no mail recipients")
}
