package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/knurl/packages/batch"
)

// JUnitTestSuites is the root element.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite holds the requests of one descriptor file.
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is one request. At most one of Failure, Error and Skipped
// is set.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitProblem is the body of a failure (HTTP error status) or an error
// (engine failure).
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter writes batch results as JUnit XML so CI systems can
// show each request as a test case.
type JUnitFormatter struct {
	writer io.Writer
	name   string
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		name:   "knurl",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// FormatBatch writes one suite named after file. A request fails when it
// returned an HTTP error status and errors when the engine failed it.
func (f *JUnitFormatter) FormatBatch(file string, results []batch.Result, summary *batch.Summary) error {
	suite := JUnitTestSuite{
		Name:      file,
		Tests:     len(results),
		Time:      summary.Duration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(results)),
	}

	for _, r := range results {
		tc := JUnitTestCase{
			Name:      r.RequestID,
			ClassName: file,
			Time:      r.Duration.Seconds(),
		}

		switch {
		case r.Skipped:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: r.Err.Error()}
		case r.Err != nil:
			suite.Errors++
			tc.Error = &JUnitProblem{
				Message: r.Err.Error(),
				Type:    batch.Outcome(r.Err),
			}
		case r.Response.StatusCode >= 400:
			suite.Failures++
			tc.Failure = &JUnitProblem{
				Message: fmt.Sprintf("HTTP %d %s", r.Response.StatusCode, r.Response.Status),
				Type:    "HTTPStatus",
				Content: strings.TrimSpace(fmt.Sprintf("%s %d %s", r.Response.Proto, r.Response.StatusCode, r.Response.Status)),
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	suites := JUnitTestSuites{
		Name:       f.name,
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Skipped:    suite.Skipped,
		Time:       suite.Time,
		Timestamp:  suite.Timestamp,
		TestSuites: []JUnitTestSuite{suite},
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}
