package audit

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field is one key=value token of an audit record. Quoted is set when the
// kernel wrote the value in double quotes; unquoted strings from untrusted
// sources (EXECVE arguments, PATH names) are hex encoded instead.
type Field struct {
	Key    string
	Value  string
	Quoted bool
}

// Record is one parsed audit message. Fields keep the order in which they
// appeared in the kernel text.
type Record struct {
	Type    MessageType
	AuditID string
	Time    uint64
	Fields  []Field
}

// Get returns the value of the first field named key
func (r *Record) Get(key string) (string, bool) {
	f, ok := r.Field(key)
	return f.Value, ok
}

// Field returns the first field named key
func (r *Record) Field(key string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Text returns the value of an untrusted string field (an EXECVE argument,
// a PATH name, a CWD). The kernel quotes such strings when they are plain
// and hex encodes them otherwise; an unquoted value that decodes as hex is
// returned decoded.
func (f Field) Text() string {
	if f.Quoted || f.Value == "" || len(f.Value)%2 != 0 {
		return f.Value
	}
	b, err := hex.DecodeString(f.Value)
	if err != nil {
		return f.Value
	}
	return string(b)
}

// Text returns the decoded value of the untrusted string field named key
func (r *Record) Text(key string) (string, bool) {
	f, ok := r.Field(key)
	return f.Text(), ok
}

// Map returns the fields as a map
func (r *Record) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// String renders the record for debug output:
//
//	audit_id='1.2:3' time='1' type='AUDIT_SYSCALL' fields='arch:c000003e, syscall:59'
func (r *Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "audit_id='%s' time='%d' type='%s' fields='", r.AuditID, r.Time, r.Type)
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Key)
		b.WriteByte(':')
		b.WriteString(f.Value)
	}
	b.WriteByte('\'')
	return b.String()
}

const (
	recordPrefix   = "audit("
	preambleSuffix = "): "
)

// ParseRecord tokenizes the text payload of an audit message, for example
//
//	audit(1234567890.123:100): arch=c000003e syscall=59 success=yes exe="/bin/ls"
//
// The audit ID is the text between the parentheses and Time its leading
// seconds. Double-quoted values may contain spaces and '='; the quotes are
// stripped. A repeated key keeps its first value.
func ParseRecord(t MessageType, data []byte) (*Record, error) {
	msg := strings.TrimRight(string(data), "\x00\n")

	if !strings.HasPrefix(msg, recordPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedRecord, recordPrefix)
	}
	end := strings.Index(msg, preambleSuffix)
	if end < len(recordPrefix) {
		return nil, fmt.Errorf("%w: missing preamble", ErrMalformedRecord)
	}

	id := msg[len(recordPrefix):end]
	secs := id
	if dot := strings.IndexAny(id, ".:"); dot >= 0 {
		secs = id[:dot]
	}
	ts, err := strconv.ParseUint(secs, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformedRecord, secs)
	}

	return &Record{
		Type:    t,
		AuditID: id,
		Time:    ts,
		Fields:  parseFields(msg[end+len(preambleSuffix):]),
	}, nil
}

// parseFields is a linear scanner over space separated key=value tokens.
// A token without '=' becomes a key with an empty value.
func parseFields(s string) []Field {
	var fields []Field
	seen := make(map[string]struct{})

	add := func(key, value string, quoted bool) {
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		fields = append(fields, Field{Key: key, Value: value, Quoted: quoted})
	}

	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}

		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' {
			i++
		}
		key := s[start:i]

		if i >= len(s) || s[i] == ' ' {
			add(key, "", false)
			continue
		}
		i++ // '='

		var value string
		quoted := i < len(s) && s[i] == '"'
		if quoted {
			closing := strings.IndexByte(s[i+1:], '"')
			if closing < 0 {
				value = s[i+1:]
				i = len(s)
			} else {
				value = s[i+1 : i+1+closing]
				i += closing + 2
			}
		} else {
			start = i
			for i < len(s) && s[i] != ' ' {
				i++
			}
			value = s[start:i]
		}
		add(key, value, quoted)
	}
	return fields
}

func recordTime(r *Record) time.Time {
	return time.Unix(int64(r.Time), 0)
}
