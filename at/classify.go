package at

import "strings"

// finalResponses are the result codes that complete a pending command.
var finalResponses = map[string]bool{
	OK:         true,
	ERROR:      true,
	NoCarrier:  true,
	NoDialtone: true,
	Busy:       true,
	NoAnswer:   true,
}

// urcPrefixes mark lines the modem emits on its own, outside any
// command exchange.
var urcPrefixes = []string{
	UrcNewMsg,
	UrcMsg,
	UrcStatusReport,
	UrcReportIndex,
}

// Classify identifies the nature of one extracted response record.
// It assumes "No Echo" mode (ATE0): an echoed command line would be
// misread as intermediate data.
func Classify(record string) ResponseType {
	if record == Prompt {
		return TypePrompt
	}
	if record == UrcCall {
		return TypeURC
	}
	if finalResponses[record] ||
		strings.HasPrefix(record, CmeError) ||
		strings.HasPrefix(record, CmsError) {
		return TypeFinal
	}
	for _, prefix := range urcPrefixes {
		if strings.HasPrefix(record, prefix) {
			return TypeURC
		}
	}
	return TypeData
}
