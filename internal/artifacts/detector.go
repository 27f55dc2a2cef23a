// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package artifacts scans agent response text for structured content
// worth rendering separately from prose: JSON code blocks, markdown
// tables, explicit report and dashboard blocks, and report-style
// headings.
package artifacts

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Artifact types.
const (
	TypeReport    = "report"
	TypeDashboard = "dashboard"
	TypeDocument  = "document"
	TypeTable     = "table"
	TypeChart     = "chart"
	TypeJSONData  = "json_data"
)

// Artifact is a structured block extracted from response text.
type Artifact struct {
	ArtifactID   string                 `json:"artifact_id"`
	ArtifactType string                 `json:"artifact_type"`
	Title        string                 `json:"title"`
	Content      interface{}            `json:"content"`
	RawContent   string                 `json:"raw_content"`
	Metadata     map[string]interface{} `json:"metadata"`
}

var (
	jsonBlockRe      = regexp.MustCompile("```(?:json)?[ \t]*\n([\\s\\S]*?)```")
	tableBlockRe     = regexp.MustCompile(`(?m)((?:^\|.*\|$\n?){2,})`)
	reportBlockRe    = regexp.MustCompile("```report[ \t]*\n([\\s\\S]*?)```")
	dashboardBlockRe = regexp.MustCompile("```dashboard[ \t]*\n([\\s\\S]*?)```")
	tableSeparatorRe = regexp.MustCompile(`^\|[\s\-:|]+\|$`)
	reportHeadingRe  = regexp.MustCompile(`(?mi)^#+\s+.*(COMPLIANCE|AUDIT|REPORT|ASSESSMENT|HEALTH|METRICS).*$`)
)

// Detect returns all artifacts found in responseText, in detection
// order: dashboards, reports, JSON blocks, tables, then headings.
func Detect(responseText string) []Artifact {
	if strings.TrimSpace(responseText) == "" {
		return nil
	}

	var artifacts []Artifact
	artifacts = append(artifacts, detectDashboardBlocks(responseText)...)
	artifacts = append(artifacts, detectReportBlocks(responseText)...)
	artifacts = append(artifacts, detectJSONBlocks(responseText)...)
	artifacts = append(artifacts, detectTableBlocks(responseText)...)
	artifacts = append(artifacts, detectReportHeadings(responseText)...)
	return artifacts
}

func newArtifact(artifactType, title string, content interface{}, raw string, metadata map[string]interface{}) Artifact {
	return Artifact{
		ArtifactID:   uuid.NewString(),
		ArtifactType: artifactType,
		Title:        title,
		Content:      content,
		RawContent:   raw,
		Metadata:     metadata,
	}
}

func detectJSONBlocks(text string) []Artifact {
	var artifacts []Artifact
	for _, match := range jsonBlockRe.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(match[1])

		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			continue
		}

		title := "JSON Data"
		if obj, ok := parsed.(map[string]interface{}); ok {
			title = titleFromObject(obj, "JSON Data")
		}

		artifacts = append(artifacts, newArtifact(TypeJSONData, title, parsed, raw,
			map[string]interface{}{"source": "json_code_block"}))
	}
	return artifacts
}

func detectTableBlocks(text string) []Artifact {
	var artifacts []Artifact
	for _, match := range tableBlockRe.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(match[1])

		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		// Header row plus separator row at minimum.
		if len(lines) < 2 || !tableSeparatorRe.MatchString(lines[1]) {
			continue
		}

		headers := splitCells(lines[0])
		rows := make([][]string, 0, len(lines)-2)
		for _, line := range lines[2:] {
			rows = append(rows, splitCells(line))
		}

		title := "Table"
		if len(headers) > 0 {
			title = fmt.Sprintf("Table (%d rows)", len(rows))
		}

		artifacts = append(artifacts, newArtifact(TypeTable, title,
			map[string]interface{}{"headers": headers, "rows": rows}, raw,
			map[string]interface{}{
				"source":    "markdown_table",
				"row_count": len(rows),
				"columns":   headers,
			}))
	}
	return artifacts
}

func detectReportBlocks(text string) []Artifact {
	return detectFencedBlocks(text, reportBlockRe, TypeReport, "Report", "report_block")
}

func detectDashboardBlocks(text string) []Artifact {
	return detectFencedBlocks(text, dashboardBlockRe, TypeDashboard, "Dashboard", "dashboard_block")
}

// detectFencedBlocks extracts explicit fenced blocks whose content is
// JSON when possible and raw text otherwise.
func detectFencedBlocks(text string, re *regexp.Regexp, artifactType, defaultTitle, source string) []Artifact {
	var artifacts []Artifact
	for _, match := range re.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(match[1])

		var content interface{} = raw
		title := defaultTitle
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			content = parsed
			if obj, ok := parsed.(map[string]interface{}); ok {
				title = titleFromObject(obj, defaultTitle)
			}
		}

		artifacts = append(artifacts, newArtifact(artifactType, title, content, raw,
			map[string]interface{}{"source": source}))
	}
	return artifacts
}

// detectReportHeadings promotes the whole response to a report or
// dashboard artifact when a report-style heading is present and no
// explicit block already covered it.
func detectReportHeadings(text string) []Artifact {
	if reportBlockRe.MatchString(text) || dashboardBlockRe.MatchString(text) {
		return nil
	}

	heading := reportHeadingRe.FindString(text)
	if heading == "" {
		return nil
	}
	headingText := strings.TrimSpace(strings.TrimLeft(heading, "#"))

	artifactType := TypeReport
	upper := strings.ToUpper(headingText)
	for _, kw := range []string{"HEALTH", "METRICS", "DASHBOARD"} {
		if strings.Contains(upper, kw) {
			artifactType = TypeDashboard
			break
		}
	}

	return []Artifact{newArtifact(artifactType, headingText, text, text,
		map[string]interface{}{"source": "heading_detection"})}
}

func titleFromObject(obj map[string]interface{}, fallback string) string {
	if title, ok := obj["title"].(string); ok && title != "" {
		return title
	}
	if name, ok := obj["name"].(string); ok && name != "" {
		return name
	}
	return fallback
}

func splitCells(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "|") {
		if trimmed := strings.TrimSpace(cell); trimmed != "" {
			cells = append(cells, trimmed)
		}
	}
	return cells
}
