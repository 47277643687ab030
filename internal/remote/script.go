// Package remote runs this tool on the Windows host from inside WSL,
// through powershell.exe.
package remote

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// Invocation is the control-side command the guest asks for.
type Invocation struct {
	// Binary is the Windows path of the control-side executable.
	Binary  string
	Browser string
	Port    int
	RunID   string

	// Elevate requests a UAC prompt when the shell is not elevated.
	// Without it the control side fails fast with a privilege error.
	Elevate bool

	// Extra arguments appended verbatim.
	Extra []string
}

// Args returns the argument list passed to the control-side binary.
func (inv Invocation) Args() []string {
	args := []string{"--browser", inv.Browser, "--port", strconv.Itoa(inv.Port)}
	if inv.RunID != "" {
		args = append(args, "--run-id", inv.RunID)
	}
	return append(args, inv.Extra...)
}

var scriptTemplate = template.Must(template.New("remote").Funcs(template.FuncMap{
	"quote": psQuote,
}).Parse(`$ErrorActionPreference = 'Stop'
$exe = {{quote .Binary}}
$argList = @({{range $i, $a := .Args}}{{if $i}}, {{end}}{{quote $a}}{{end}})
{{- if .Elevate}}
$identity = [Security.Principal.WindowsIdentity]::GetCurrent()
$principal = New-Object Security.Principal.WindowsPrincipal($identity)
if (-not $principal.IsInRole([Security.Principal.WindowsBuiltInRole]::Administrator)) {
    $p = Start-Process -FilePath $exe -ArgumentList $argList -Verb RunAs -Wait -PassThru
    exit $p.ExitCode
}
{{- end}}
& $exe @argList
exit $LASTEXITCODE
`))

type scriptData struct {
	Binary  string
	Args    []string
	Elevate bool
}

// Script renders the PowerShell program for inv.
func Script(inv Invocation) (string, error) {
	if inv.Binary == "" {
		return "", fmt.Errorf("remote: no binary")
	}
	var b strings.Builder
	err := scriptTemplate.Execute(&b, scriptData{
		Binary:  inv.Binary,
		Args:    inv.Args(),
		Elevate: inv.Elevate,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// psQuote renders s as a single-quoted PowerShell string literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
