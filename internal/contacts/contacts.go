package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Contact is one destination from a dial list. Fields carries any extra
// columns from the source verbatim.
type Contact struct {
	Number string            `json:"number"`
	Name   string            `json:"name,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Usable reports whether the contact has a destination address.
func (c Contact) Usable() bool {
	return strings.TrimSpace(c.Number) != ""
}

// Filter drops contacts without a usable destination, logging each skip.
// Skipped records never consume a dialing slot.
func Filter(list []Contact) []Contact {
	usable := make([]Contact, 0, len(list))
	for i, c := range list {
		if !c.Usable() {
			log.Printf("skipping contact %d (%s): missing destination number", i+1, c.Name)
			continue
		}
		usable = append(usable, c)
	}
	return usable
}

// ReadCSV parses a contact list with a header row. The destination column is
// any of "number", "phone" or "to" (case-insensitive); a "name" column is
// recognized; remaining columns land in Fields.
func ReadCSV(r io.Reader) ([]Contact, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	numberCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "number", "phone", "to":
			numberCol = i
		case "name":
			nameCol = i
		}
	}
	if numberCol < 0 {
		return nil, fmt.Errorf("csv header has no number/phone/to column: %v", header)
	}

	var list []Contact
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		c := Contact{Fields: make(map[string]string)}
		for i, v := range record {
			v = strings.TrimSpace(v)
			switch {
			case i == numberCol:
				c.Number = v
			case i == nameCol:
				c.Name = v
			case i < len(header):
				c.Fields[strings.TrimSpace(header[i])] = v
			}
		}
		if len(c.Fields) == 0 {
			c.Fields = nil
		}
		list = append(list, c)
	}
	return list, nil
}

// ReadCSVFile loads a contact list from disk.
func ReadCSVFile(path string) ([]Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contact list: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}
