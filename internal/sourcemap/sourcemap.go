package sourcemap

// This package implements the small subset of the source map specification
// that the assembler needs: decoding a per-module "mappings" string into
// individual segments and re-encoding a merged set of segments once their
// generated line has been shifted into the final bundle.
//
// The VLQ codec below is taken from the same base64-VLQ scheme used by every
// JavaScript source map tool; see https://sourcemaps.info/spec.html.

import (
	"bytes"
)

// Segment is a single source map mapping, fully decoded (absolute, not
// delta-encoded). SourceIndex/OriginalLine/OriginalColumn are only valid
// when HasSource is true; NameIndex is only valid when HasName is true.
type Segment struct {
	GeneratedLine   int32
	GeneratedColumn int32

	HasSource      bool
	SourceIndex    int32
	OriginalLine   int32
	OriginalColumn int32

	HasName   bool
	NameIndex int32
}

// Map is a fully decoded per-module source map: the set of original file
// names it references and every mapping segment, still relative to that
// module's own generated output (i.e. GeneratedLine 0 is the module's own
// first output line, not the bundle's).
type Map struct {
	Sources        []string
	SourcesContent []string
	Names          []string
	Segments       []Segment
}

var base64 = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")

// EncodeVLQ appends the base64-VLQ encoding of value to encoded.
//
//	Continuation
//	|    Sign
//	|    |
//	V    V
//	101011
func EncodeVLQ(encoded []byte, value int32) []byte {
	var vlq int32
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		encoded = append(encoded, base64[digit])
		if vlq == 0 {
			break
		}
	}

	return encoded
}

// DecodeVLQ decodes a single base64-VLQ value starting at "start" and
// returns the value plus the index just past it.
func DecodeVLQ(encoded []byte, start int) (int32, int) {
	shift := uint(0)
	var vlq int32

	for start < len(encoded) {
		index := bytes.IndexByte(base64, encoded[start])
		if index < 0 {
			break
		}
		vlq |= int32(index&31) << shift
		start++
		shift += 5
		if (index & 32) == 0 {
			break
		}
	}

	value := vlq >> 1
	if (vlq & 1) != 0 {
		value = -value
	}
	return value, start
}

// DecodeMappings parses a raw "mappings" field into a flat, absolute list of
// segments. Unrecognized or truncated trailing segments are dropped rather
// than treated as a fatal error, matching how source map consumers in the
// wild behave.
func DecodeMappings(mappings string) []Segment {
	var segments []Segment
	data := []byte(mappings)
	line := int32(0)
	genCol, srcIdx, origLine, origCol, nameIdx := int32(0), int32(0), int32(0), int32(0), int32(0)

	i := 0
	for i < len(data) {
		switch data[i] {
		case ';':
			line++
			genCol = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		start := i
		var dGenCol int32
		dGenCol, i = DecodeVLQ(data, i)
		genCol += dGenCol
		seg := Segment{GeneratedLine: line, GeneratedColumn: genCol}

		if i < len(data) && data[i] != ',' && data[i] != ';' {
			var dSrc, dLine, dCol int32
			dSrc, i = DecodeVLQ(data, i)
			dLine, i = DecodeVLQ(data, i)
			dCol, i = DecodeVLQ(data, i)
			srcIdx += dSrc
			origLine += dLine
			origCol += dCol
			seg.HasSource = true
			seg.SourceIndex = srcIdx
			seg.OriginalLine = origLine
			seg.OriginalColumn = origCol

			if i < len(data) && data[i] != ',' && data[i] != ';' {
				var dName int32
				dName, i = DecodeVLQ(data, i)
				nameIdx += dName
				seg.HasName = true
				seg.NameIndex = nameIdx
			}
		}

		if i == start {
			// Made no progress; bail out rather than loop forever on garbage input.
			return segments
		}
		segments = append(segments, seg)
	}

	return segments
}

// EncodeMappings re-encodes a list of segments, ordered by (GeneratedLine,
// GeneratedColumn), back into the delta-encoded VLQ "mappings" string.
func EncodeMappings(segments []Segment) string {
	var out []byte
	var line, genCol, srcIdx, origLine, origCol, nameIdx int32
	firstOnLine := true

	for _, seg := range segments {
		for line < seg.GeneratedLine {
			out = append(out, ';')
			line++
			genCol = 0
			firstOnLine = true
		}

		if !firstOnLine {
			out = append(out, ',')
		}
		firstOnLine = false

		out = EncodeVLQ(out, seg.GeneratedColumn-genCol)
		genCol = seg.GeneratedColumn

		if seg.HasSource {
			out = EncodeVLQ(out, seg.SourceIndex-srcIdx)
			out = EncodeVLQ(out, seg.OriginalLine-origLine)
			out = EncodeVLQ(out, seg.OriginalColumn-origCol)
			srcIdx, origLine, origCol = seg.SourceIndex, seg.OriginalLine, seg.OriginalColumn

			if seg.HasName {
				out = EncodeVLQ(out, seg.NameIndex-nameIdx)
				nameIdx = seg.NameIndex
			}
		}
	}

	return string(out)
}

// CountLines returns the number of generated lines implied by text, i.e. the
// value that "source_map_output_line_offset" bookkeeping needs to add up.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			n++
		}
	}
	return n
}
