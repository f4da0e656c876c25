package diagnostics

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	sarif "github.com/owenrumney/go-sarif/v2/sarif"
)

// SARIFExporter renders the workspace's diagnostic set as SARIF 2.1.0,
// so the same unresolved-reference warnings the editor sees can be
// consumed by CI tooling via `ruby-fast-lsp index --sarif out.sarif`.
type SARIFExporter struct {
	writer io.Writer
}

// NewSARIFExporter builds an exporter writing to w.
func NewSARIFExporter(w io.Writer) *SARIFExporter {
	return &SARIFExporter{writer: w}
}

// Export writes one SARIF run containing every diagnostic in byURI.
func (e *SARIFExporter) Export(byURI map[string][]Diagnostic) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}

	run := sarif.NewRunWithInformationURI("ruby-fast-lsp", "https://github.com/ruby-fast-lsp/ruby-fast-lsp-go")
	e.addRules(byURI, run)

	uris := make([]string, 0, len(byURI))
	for uri := range byURI {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		for _, d := range byURI[uri] {
			e.addResult(uri, d, run)
		}
	}

	report.AddRun(run)

	enc := json.NewEncoder(e.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// addRules registers one SARIF rule per distinct diagnostic code.
func (e *SARIFExporter) addRules(byURI map[string][]Diagnostic, run *sarif.Run) {
	seen := make(map[string]bool)
	var codes []string
	for _, diags := range byURI {
		for _, d := range diags {
			if d.Code != "" && !seen[d.Code] {
				seen[d.Code] = true
				codes = append(codes, d.Code)
			}
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		rule := run.AddRule(code)
		rule.WithDescription(ruleDescription(code))
	}
}

func ruleDescription(code string) string {
	switch code {
	case CodeSyntaxError:
		return "Ruby source failed to parse"
	case CodeUnresolvedConstant:
		return "Constant reference with no known definition"
	case CodeUnresolvedMethod:
		return "Method call with no known definition"
	case CodeOversizedInput:
		return "File rejected for exceeding size limits"
	default:
		return code
	}
}

func (e *SARIFExporter) addResult(uri string, d Diagnostic, run *sarif.Run) {
	level := "warning"
	if d.Severity == SeverityError {
		level = "error"
	}

	// SARIF locations are 1-based; internal ranges are 0-based.
	region := sarif.NewRegion().
		WithStartLine(d.Range.Start.Line + 1).
		WithEndLine(d.Range.End.Line + 1).
		WithStartColumn(d.Range.Start.Column + 1).
		WithEndColumn(d.Range.End.Column + 1)

	location := sarif.NewLocation().
		WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(
					sarif.NewArtifactLocation().WithUri(trimFileScheme(uri)),
				).
				WithRegion(region),
		)

	run.CreateResultForRule(d.Code).
		WithLevel(level).
		WithMessage(sarif.NewTextMessage(d.Message)).
		AddLocation(location)
}

func trimFileScheme(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
