package printer

import (
	"bytes"
	"strings"

	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
)

// Formatting tags understood by the renderers. The document stream is
// newline-delimited text with these bracketed tags inline; an Encoder turns
// it into the bytes a concrete printer dialect expects.
const (
	TagInit           = "[INIT]"
	TagCenter         = "[CENTER]"
	TagLeft           = "[LEFT]"
	TagRight          = "[RIGHT]"
	TagBold           = "[BOLD]"
	TagBoldOff        = "[/BOLD]"
	TagBig            = "[BIG]"
	TagBigOff         = "[/BIG]"
	TagCut            = "[CUT]"
	TagOpenCashDrawer = "[OPENCASHDRAWER]"
)

var allTags = []string{
	TagInit, TagCenter, TagLeft, TagRight,
	TagBold, TagBoldOff, TagBig, TagBigOff,
	TagCut, TagOpenCashDrawer,
}

// Encoder turns a tagged document into printer-ready bytes. Implementations
// are per-dialect so alternate printers can be plugged in.
type Encoder interface {
	Encode(doc string, p model.PrinterSetting) []byte
}

// PlainTextEncoder strips every tag and ships bare text. This is the legacy
// placeholder behavior: formatting is advisory only and nothing is bolded or
// cut on real hardware.
type PlainTextEncoder struct{}

func (PlainTextEncoder) Encode(doc string, _ model.PrinterSetting) []byte {
	r := strings.NewReplacer(tagPairs(func(string) string { return "" })...)
	out := r.Replace(doc)
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out)
}

// EscposEncoder maps tags to real ESC/POS escape sequences.
type EscposEncoder struct{}

func (EscposEncoder) Encode(doc string, p model.PrinterSetting) []byte {
	cut := cutSequence(p)
	seq := map[string]string{
		TagInit:           "\x1b@",
		TagCenter:         "\x1ba\x01",
		TagLeft:           "\x1ba\x00",
		TagRight:          "\x1ba\x02",
		TagBold:           "\x1bE\x01",
		TagBoldOff:        "\x1bE\x00",
		TagBig:            "\x1d!\x11",
		TagBigOff:         "\x1d!\x00",
		TagCut:            cut,
		TagOpenCashDrawer: "\x1bp\x00\x19\xfa",
	}
	r := strings.NewReplacer(tagPairs(func(tag string) string { return seq[tag] })...)

	var buf bytes.Buffer
	buf.WriteString(r.Replace(doc))
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// cutSequence feeds the configured number of blank lines so the text clears
// the blade, then issues a full or partial cut.
func cutSequence(p model.PrinterSetting) string {
	if !p.AutoCut {
		return ""
	}
	feed := strings.Repeat("\n", max(p.LinesBeforeCut, 0))
	return feed + "\x1dV\x00"
}

func tagPairs(replace func(tag string) string) []string {
	pairs := make([]string, 0, len(allTags)*2)
	for _, tag := range allTags {
		pairs = append(pairs, tag, replace(tag))
	}
	return pairs
}

// EncoderFor picks the dialect for a printer. Network printers get the real
// ESC/POS stream; everything else renders plain text for the OS dialog.
func EncoderFor(p model.PrinterSetting) Encoder {
	if p.ConnectionType == enum.ConnectionTypeNetwork {
		return EscposEncoder{}
	}
	return PlainTextEncoder{}
}

// LineWidth is the printable character count for the paper width. 80mm paper
// fits 48 columns at standard font, 58mm fits 32.
func LineWidth(p model.PrinterSetting) int {
	if p.PaperWidth > 0 && p.PaperWidth <= 58 {
		return 32
	}
	return 48
}
