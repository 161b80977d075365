// Package dataset loads labeled SMS messages and splits them into train and test subsets.
//
// The input format is a tab-separated text file without a header, one message per line:
//
//	ham	Ok lar... Joking wif u oni...
//	spam	Free entry in 2 a wkly comp to win FA Cup final tkts
//
// The label must be either "spam" or "ham". Any other layout aborts the load with ErrDataFormat.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrDataFormat is returned for malformed input rows and unknown labels.
var ErrDataFormat = errors.New("data format error")

// Class is a label of a message
type Class string

// enum of supported classes, values match the labels in the input file
const (
	ClassSpam Class = "spam"
	ClassHam  Class = "ham"
)

// ClassOf returns the class for the spam flag
func ClassOf(spam bool) Class {
	if spam {
		return ClassSpam
	}
	return ClassHam
}

// ParseClass converts a label to a spam flag
func ParseClass(label string) (spam bool, err error) {
	switch Class(label) {
	case ClassSpam:
		return true, nil
	case ClassHam:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown label %q", ErrDataFormat, label)
	}
}

// Message is a single labeled message
type Message struct {
	Text string
	Spam bool
}

// Class returns the class of the message
func (m Message) Class() Class { return ClassOf(m.Spam) }

// Dataset is an ordered list of messages
type Dataset []Message

// Stats is a summary of the dataset
type Stats struct {
	Total      int     `json:"total"`
	Spam       int     `json:"spam"`
	Ham        int     `json:"ham"`
	SpamRatio  float64 `json:"spam_ratio"`   // spam messages to total, 0..1
	AvgSpamLen float64 `json:"avg_spam_len"` // average spam text length in runes
	AvgHamLen  float64 `json:"avg_ham_len"`  // average ham text length in runes
}

func (s Stats) String() string {
	return fmt.Sprintf("total:%d, spam:%d, ham:%d, spam-ratio:%.4f, avg-len spam:%.2f, ham:%.2f",
		s.Total, s.Spam, s.Ham, s.SpamRatio, s.AvgSpamLen, s.AvgHamLen)
}

// Texts returns message texts in dataset order
func (d Dataset) Texts() []string {
	res := make([]string, len(d))
	for i, m := range d {
		res[i] = m.Text
	}
	return res
}

// Labels returns spam flags in dataset order
func (d Dataset) Labels() []bool {
	res := make([]bool, len(d))
	for i, m := range d {
		res[i] = m.Spam
	}
	return res
}

// Stats calculates dataset summary
func (d Dataset) Stats() Stats {
	res := Stats{Total: len(d)}
	spamLen, hamLen := 0, 0
	for _, m := range d {
		l := utf8.RuneCountInString(m.Text)
		if m.Spam {
			res.Spam++
			spamLen += l
			continue
		}
		res.Ham++
		hamLen += l
	}
	if res.Total > 0 {
		res.SpamRatio = float64(res.Spam) / float64(res.Total)
	}
	if res.Spam > 0 {
		res.AvgSpamLen = float64(spamLen) / float64(res.Spam)
	}
	if res.Ham > 0 {
		res.AvgHamLen = float64(hamLen) / float64(res.Ham)
	}
	return res
}

// LoadFile reads dataset from a tab-separated file
func LoadFile(path string) (Dataset, error) {
	fh, err := os.Open(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()

	res, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("[DEBUG] loaded %d messages from %s", len(res), path)
	return res, nil
}

// Load reads dataset from a reader, one "label<TAB>text" record per line.
// Blank lines are skipped, any other malformed line aborts the load.
func Load(r io.Reader) (Dataset, error) {
	res := Dataset{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		msg, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		res = append(res, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read dataset after line %d: %w", ErrDataFormat, lineNum, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrDataFormat)
	}
	return res, nil
}

func parseLine(line string) (Message, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 2 {
		return Message{}, fmt.Errorf("%w: expected 2 tab-separated fields, got %d", ErrDataFormat, len(fields))
	}
	spam, err := ParseClass(fields[0])
	if err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(fields[1]) == "" {
		return Message{}, fmt.Errorf("%w: empty text", ErrDataFormat)
	}
	return Message{Text: fields[1], Spam: spam}, nil
}
