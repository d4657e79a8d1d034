// Created by WINK Streaming (https://www.wink.co)
// Package sdp implements SDP (RFC 4566) generation for this stack's own
// DESCRIBE responses and parsing for its client's DESCRIBE consumption.
package sdp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MediaDescription is one m= block together with the a= attributes that
// follow it, up to the next m= line or the end of the message.
type MediaDescription struct {
	MediaType string
	Port      int
	Proto     string
	Formats   []string

	Attributes []Attribute
}

// Attribute is one a=<name>[:<value>] line. Value is empty for a bare
// property attribute like "a=recvonly".
type Attribute struct {
	Name  string
	Value string
}

// Values returns every value associated with name, in document order.
func (m *MediaDescription) Values(name string) []string {
	var out []string
	for _, a := range m.Attributes {
		if a.Name == name {
			out = append(out, a.Value)
		}
	}
	return out
}

// Value returns the first value associated with name, or "".
func (m *MediaDescription) Value(name string) string {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// RTPMap is the parsed form of an "a=rtpmap:<pt> <name>/<clockrate>[/<channels>]"
// attribute for one of this media block's formats.
type RTPMap struct {
	PayloadType int
	EncodingName string
	ClockRate    uint32
	Channels     int
}

// RTPMapFor returns the parsed rtpmap entry for payloadType, if present.
func (m *MediaDescription) RTPMapFor(payloadType int) (RTPMap, bool) {
	for _, v := range m.Values("rtpmap") {
		fields := strings.SplitN(v, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pt, err := strconv.Atoi(fields[0])
		if err != nil || pt != payloadType {
			continue
		}
		parts := strings.Split(fields[1], "/")
		rm := RTPMap{PayloadType: pt, EncodingName: parts[0]}
		if len(parts) > 1 {
			if cr, err := strconv.Atoi(parts[1]); err == nil {
				rm.ClockRate = uint32(cr)
			}
		}
		if len(parts) > 2 {
			rm.Channels, _ = strconv.Atoi(parts[2])
		}
		return rm, true
	}
	return RTPMap{}, false
}

// SessionDescription is a parsed SDP message: the session-level key=>values
// (v=, o=, s=, c=, t=, top-level a=, plus any non-a= line found inside an m=
// block) and the per-media blocks.
type SessionDescription struct {
	Session map[string][]string
	Media   []MediaDescription
}

// Value returns the first session-level value for key.
func (sd *SessionDescription) Value(key string) string {
	values := sd.Session[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// ConnectionAddress returns the address from the first c= line in the
// message. Parse files media-level c= lines under the session-level values,
// so a session-level c= line, when present, wins; there is no per-media
// lookup.
func (sd *SessionDescription) ConnectionAddress() string {
	if c := sd.Value("c"); c != "" {
		fields := strings.Fields(c)
		if len(fields) == 3 {
			return strings.SplitN(fields[2], "/", 2)[0]
		}
	}
	return ""
}

// Parse reads an SDP message, associating each a= attribute with whichever
// m= block most recently preceded it (or with the session if none has).
func Parse(data []byte) (*SessionDescription, error) {
	sd := &SessionDescription{Session: make(map[string][]string)}
	reader := bytes.NewBuffer(data)

	var current *MediaDescription

	for {
		line, err := nextLine(reader)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		key, value := line[0:1], line[2:]

		switch key {
		case "m":
			md, err := parseMediaLine(value)
			if err != nil {
				return nil, err
			}
			sd.Media = append(sd.Media, md)
			current = &sd.Media[len(sd.Media)-1]
		case "a":
			attr := parseAttribute(value)
			if current != nil {
				current.Attributes = append(current.Attributes, attr)
			} else {
				sd.Session[key] = append(sd.Session[key], value)
			}
		default:
			sd.Session[key] = append(sd.Session[key], value)
		}
	}

	return sd, nil
}

func parseMediaLine(value string) (MediaDescription, error) {
	fields := strings.Fields(value)
	if len(fields) < 4 {
		return MediaDescription{}, fmt.Errorf("sdp: malformed media line %q", value)
	}
	port, _ := strconv.Atoi(strings.SplitN(fields[1], "/", 2)[0])
	return MediaDescription{
		MediaType: fields[0],
		Port:      port,
		Proto:     fields[2],
		Formats:   fields[3:],
	}, nil
}

func parseAttribute(value string) Attribute {
	if idx := strings.Index(value, ":"); idx >= 0 {
		return Attribute{Name: value[:idx], Value: value[idx+1:]}
	}
	return Attribute{Name: value}
}

func nextLine(reader *bytes.Buffer) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return line, err
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}
