package xref

import "bytes"

// Report is the outcome of ValidateStructure. Errors make the file
// unusable (missing header) or force degraded loading (missing
// cross-reference table); warnings never block loading.
type Report struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Header   Header
	// Degradable is true when the only errors are ones a rebuilt
	// cross-reference table can compensate for.
	Degradable bool
}

const (
	MsgMissingHeader = "missing or invalid PDF header"
	MsgMissingXRef   = "cross-reference table not found"
	MsgMissingEOF    = "missing %%EOF marker"
)

func ValidateStructure(data []byte) Report {
	var rep Report
	h, ok := ParseHeader(data)
	if !ok {
		rep.Errors = append(rep.Errors, MsgMissingHeader)
	}
	rep.Header = h
	if _, ok := ParseCrossReferenceTable(data); !ok {
		rep.Errors = append(rep.Errors, MsgMissingXRef)
	}
	tail := data
	if len(tail) > headerWindow {
		tail = tail[len(tail)-headerWindow:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		rep.Warnings = append(rep.Warnings, MsgMissingEOF)
	}
	rep.Valid = len(rep.Errors) == 0
	rep.Degradable = rep.Header.Version != ""
	return rep
}
