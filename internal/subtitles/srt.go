package subtitles

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	srtTiming = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)
	srtBlank  = regexp.MustCompile(`\n\s*\n`)
	markup    = regexp.MustCompile(`<[^>]*>`)

	errNoCues = errors.New("no subtitle cues found")
)

// ParseSRT decodes SubRip cues. Blocks without a timing line are skipped;
// a document with no cues at all is an error.
func ParseSRT(data []byte) ([]Entry, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	var out []Entry
	for _, block := range srtBlank.Split(strings.TrimSpace(text), -1) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		// The index line is optional in the wild; find the timing line.
		timing := -1
		for i, l := range lines {
			if i > 1 {
				break
			}
			if srtTiming.MatchString(l) {
				timing = i
				break
			}
		}
		if timing < 0 || timing == len(lines)-1 {
			continue
		}
		m := srtTiming.FindStringSubmatch(lines[timing])
		body := strings.Join(lines[timing+1:], " ")
		out = append(out, Entry{
			Start: clock(m[1], m[2], m[3], m[4]),
			End:   clock(m[5], m[6], m[7], m[8]),
			Text:  strings.TrimSpace(markup.ReplaceAllString(body, "")),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parse srt: %w", errNoCues)
	}
	return out, nil
}

func clock(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mss, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(mss)/1000
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// ParseTimedText decodes YouTube's timedtext XML
// (<transcript><text start=".." dur="..">...</text></transcript>).
func ParseTimedText(data []byte) ([]Entry, error) {
	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse timedtext: %w", err)
	}
	out := make([]Entry, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		start, err := strconv.ParseFloat(t.Start, 64)
		if err != nil {
			continue
		}
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		// Captions arrive entity-escaped twice.
		body := html.UnescapeString(t.Body)
		body = strings.Join(strings.Fields(markup.ReplaceAllString(body, "")), " ")
		out = append(out, Entry{Start: start, End: start + dur, Text: body})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parse timedtext: %w", errNoCues)
	}
	return out, nil
}
