package charts

import (
	"fmt"
	"net/url"
	"regexp"
)

var hoverTestRunID = regexp.MustCompile(`testRunId: ([^\s<]+)`)

// HoverText encodes the test run id of a point so a click handler can recover it
func HoverText(testRunID, resolution string) string {
	if resolution == "" {
		return fmt.Sprintf("testRunId: %s", testRunID)
	}
	return fmt.Sprintf("testRunId: %s<br>resolution: %s", testRunID, resolution)
}

// TestRunIDFromHover parses the test run id back out of a point's hover text
func TestRunIDFromHover(text string) (string, bool) {
	m := hoverTestRunID.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ClickTarget returns the page path of a test run clicked in a chart
func ClickTarget(application, testEnvironment, testType, testRunID string) string {
	q := url.Values{}
	q.Set("application", application)
	q.Set("testEnvironment", testEnvironment)
	q.Set("testType", testType)
	return fmt.Sprintf("/test-run/%s?%s", url.PathEscape(testRunID), q.Encode())
}
