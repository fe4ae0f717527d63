// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

package audit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Format is an export encoding.
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatCEF    Format = "cef" // Common Event Format, for SIEM ingestion
)

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	if f == FormatCEF {
		return "text/plain; charset=utf-8"
	}
	return "application/x-ndjson"
}

// exportPageSize bounds how many entries are held in memory per page.
const exportPageSize = 500

// Export streams every entry matching f from r to w, most recent first, and
// returns the number written. f.Limit caps the total when positive.
func Export(ctx context.Context, r Reader, f Filter, format Format, w io.Writer) (int, error) {
	var enc func(*bufio.Writer, *Entry) error
	switch format {
	case FormatNDJSON, "":
		enc = writeNDJSON
	case FormatCEF:
		enc = writeCEF
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}

	bw := bufio.NewWriter(w)
	total := f.Limit
	page := f
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		page.Limit = exportPageSize
		if total > 0 && total-written < exportPageSize {
			page.Limit = total - written
		}
		entries, err := r.List(ctx, page)
		if err != nil {
			return written, fmt.Errorf("failed to list audit entries: %w", err)
		}
		for i := range entries {
			if err := enc(bw, &entries[i]); err != nil {
				return written, err
			}
			written++
		}
		if len(entries) < page.Limit || (total > 0 && written >= total) {
			break
		}
		page.Offset += len(entries)
	}
	return written, bw.Flush()
}

func writeNDJSON(w *bufio.Writer, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// CEF:Version|Vendor|Product|Version|Signature ID|Name|Severity|Extension
func writeCEF(w *bufio.Writer, e *Entry) error {
	_, err := fmt.Fprintf(w, "CEF:0|ClinicaJuridicaUSS|ClinicaGuard|1.0|%s|%s|%d|%s\n",
		cefEscape(string(e.Action)),
		cefEscape(e.Description),
		cefSeverity(e.Action),
		cefExtension(e),
	)
	return err
}

func cefSeverity(a ActionKind) int {
	switch a {
	case ActionAccessDenied:
		return 7
	case ActionDelete:
		return 5
	case ActionLogin, ActionLogout:
		return 3
	default:
		return 1
	}
}

func cefExtension(e *Entry) string {
	parts := []string{fmt.Sprintf("rt=%d", e.Timestamp.UnixMilli())}
	if e.Actor != nil {
		parts = append(parts, "suid="+cefEscape(e.Actor.ID), "suser="+cefEscape(e.Actor.Username))
	}
	if e.ClientIP != "" {
		parts = append(parts, "src="+cefEscape(e.ClientIP))
	}
	parts = append(parts, "cs1Label=entityKind", "cs1="+cefEscape(string(e.EntityKind)))
	if e.EntityID != "" {
		parts = append(parts, "cs2Label=entityId", "cs2="+cefEscape(e.EntityID))
	}
	if e.RequestID != "" {
		parts = append(parts, "externalId="+cefEscape(e.RequestID))
	}
	return strings.Join(parts, " ")
}

var cefReplacer = strings.NewReplacer(`\`, `\\`, "|", `\|`, "=", `\=`, "\n", " ", "\r", "")

func cefEscape(s string) string {
	return cefReplacer.Replace(s)
}
