package htflow

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ShortForm(t *testing.T) {
	assert.Equal(t, "htflow dev", Serve("htflow", ModeDev, "", 3050, false))
	assert.Equal(t, "htflow dev site", Serve("htflow", ModeDev, "site", 3050, false))
	assert.Equal(t, "htflow serve", Serve("htflow", ModeStart, "", 3051, false))
	assert.Equal(t, "htflow serve public", Serve("htflow", ModeStart, "public", 3051, false))
	assert.Equal(t, "htflow serve preview", Serve("htflow", "preview", ".", 3000, false))
}

func TestServe_LongFormWithPort(t *testing.T) {
	assert.Equal(t, "htflow serve dev -p 4000", Serve("htflow", ModeDev, "", 4000, true))
	assert.Equal(t, "htflow serve start site -p 8080", Serve("htflow", ModeStart, "site", 8080, true))
	assert.Equal(t, `htflow serve dev 'my site' -p 4000`, Serve("htflow", ModeDev, "my site", 4000, true))
}

func TestOneShotCommands(t *testing.T) {
	tool := "npx htflow"
	assert.Equal(t, "npx htflow init", Init(tool))
	assert.Equal(t, "npx htflow validate", Validate(tool, ""))
	assert.Equal(t, "npx htflow validate pages/index.html", Validate(tool, "pages/index.html"))
	assert.Equal(t, "npx htflow build", Build(tool))
	assert.Equal(t, "npx htflow --version", Version(tool))
	assert.Equal(t, "npx htflow audit", Audit(tool, ""))
	assert.Equal(t, "npx htflow audit docs", Audit(tool, "docs"))
	assert.Equal(t, "npx htflow audit --html", AuditHTML(tool))
	assert.Equal(t, "npx htflow mcp-install", MCPInstall(tool))
	assert.Equal(t, "npx htflow mcp-uninstall", MCPUninstall(tool))
	assert.Equal(t, "npx htflow mcp-status", MCPStatus(tool))
}

func TestNpmCommands(t *testing.T) {
	assert.Equal(t, "npm install -g htflow", NpmInstall("htflow"))
	assert.Equal(t, "npm update -g htflow", NpmUpdate("htflow"))
	assert.Equal(t, "npm uninstall -g htflow", NpmUninstall("htflow"))
}

func TestTerminalName(t *testing.T) {
	assert.Equal(t, "htflow dev :3050", TerminalName("dev", 3050))
	assert.Equal(t, "htflow a-b :1", TerminalName("a/b", 1))
}

func TestArgumentsAreShellQuoted(t *testing.T) {
	assert.Equal(t, `htflow validate 'page$(echo INJECTED).html'`, Validate("htflow", "page$(echo INJECTED).html"))
	assert.Equal(t, `htflow dev site\;id`, Serve("htflow", ModeDev, "site;id", 3050, false))
	assert.Equal(t, "htflow audit a\\`id\\`b", Audit("htflow", "a`id`b"))
	assert.Equal(t, `htflow serve \#x`, Serve("htflow", ModeStart, "#x", 3051, false))
	assert.Equal(t, `htflow serve x\;y -p 80`, Serve("htflow", "x;y", "", 80, true))
	assert.Equal(t, `npm install -g 'htflow && id'`, NpmInstall("htflow && id"))
}

func TestQuotedArgumentsSurviveTheShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	hostile := []string{
		"page$(echo INJECTED).html",
		"site;id",
		"a`id`b",
		"it's here",
		"#comment",
		"~root",
		"x && y | z > w",
	}
	for _, p := range hostile {
		out, err := exec.Command("sh", "-c", Validate("echo", p)).Output()
		require.NoError(t, err, p)
		assert.Equal(t, "validate "+p+"\n", string(out), p)

		out, err = exec.Command("sh", "-c", Serve("echo", ModeDev, p, 3050, false)).Output()
		require.NoError(t, err, p)
		assert.Equal(t, "dev "+p+"\n", string(out), p)
	}
}
