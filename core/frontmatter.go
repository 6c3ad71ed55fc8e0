package core

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/frontmatter"
)

// Front matter delimiters
const (
	TOMLDelimiter = "+++"
	YAMLDelimiter = "---"
)

// Front matter formats reported in FrontMatter.Format
const (
	FormatNone = ""
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Value is a normalized front matter value: a scalar string or a list of strings
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// Strings returns the value as a list. A scalar becomes a one element list.
func (v Value) Strings() []string {
	if v.IsList {
		out := make([]string, len(v.List))
		copy(out, v.List)
		return out
	}
	if v.Scalar == "" {
		return []string{}
	}
	return []string{v.Scalar}
}

// String returns the scalar, or the first list element
func (v Value) String() string {
	if v.IsList {
		if len(v.List) == 0 {
			return ""
		}
		return v.List[0]
	}
	return v.Scalar
}

// FrontMatter is the result of splitting a content file into metadata and body
type FrontMatter struct {
	Fields map[string]Value
	Body   string
	Format string
}

// Has reports whether key is present
func (fm *FrontMatter) Has(key string) bool {
	_, ok := fm.Fields[key]
	return ok
}

// Get returns the raw value for key
func (fm *FrontMatter) Get(key string) (Value, bool) {
	v, ok := fm.Fields[key]
	return v, ok
}

// String returns the scalar value of key, or "" if absent
func (fm *FrontMatter) String(key string) string {
	return strings.TrimSpace(fm.Fields[key].String())
}

// Strings returns key as a list. Absent keys give an empty list.
func (fm *FrontMatter) Strings(key string) []string {
	v, ok := fm.Fields[key]
	if !ok {
		return []string{}
	}
	return v.Strings()
}

// Bool reports whether key holds the literal true
func (fm *FrontMatter) Bool(key string) bool {
	v, ok := fm.Fields[key]
	if !ok || v.IsList {
		return false
	}
	return strings.TrimSpace(v.Scalar) == "true"
}

// Keys returns the sorted field names
func (fm *FrontMatter) Keys() []string {
	keys := make([]string, 0, len(fm.Fields))
	for k := range fm.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseFrontMatter splits content into a metadata mapping and a body.
//
// A leading "+++" block is read as TOML and a leading "---" block as YAML
// through the generic front matter decoder. Content without either block is
// returned whole as the body. An unclosed block, or a block that does not
// decode, is a *ParseError.
func ParseFrontMatter(content string) (*FrontMatter, error) {
	content = strings.TrimPrefix(content, "\ufeff")

	switch {
	case strings.HasPrefix(content, TOMLDelimiter):
		return parseTOMLBlock(content)
	case firstLine(content) == YAMLDelimiter:
		return parseYAMLBlock(content)
	default:
		return &FrontMatter{Fields: map[string]Value{}, Body: content, Format: FormatNone}, nil
	}
}

func firstLine(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	return strings.TrimRight(line, " \t\r")
}

func parseTOMLBlock(content string) (*FrontMatter, error) {
	rest := content[len(TOMLDelimiter):]
	end := strings.Index(rest, TOMLDelimiter)
	if end == -1 {
		return nil, NewParseError(1, "TOML front matter is not closed with "+TOMLDelimiter)
	}

	block := strings.TrimSpace(rest[:end])
	body := strings.TrimSpace(rest[end+len(TOMLDelimiter):])

	fields, err := DecodeTOMLFields(block)
	if err != nil {
		return nil, err
	}
	return &FrontMatter{Fields: fields, Body: body, Format: FormatTOML}, nil
}

// DecodeTOMLFields strictly decodes a TOML document into normalized values.
// Tables are flattened into "table.key".
func DecodeTOMLFields(text string) (map[string]Value, error) {
	raw := make(map[string]interface{})
	if _, err := toml.Decode(text, &raw); err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, NewParseError(perr.Position.Line, perr.Message)
		}
		return nil, NewParseError(0, err.Error())
	}

	fields := make(map[string]Value, len(raw))
	flattenInto(fields, "", raw)
	return fields, nil
}

func parseYAMLBlock(content string) (*FrontMatter, error) {
	lines := strings.Split(content, "\n")
	closed := false
	for _, line := range lines[1:] {
		if strings.TrimRight(line, " \t\r") == YAMLDelimiter {
			closed = true
			break
		}
	}
	if !closed {
		return nil, NewParseError(1, "YAML front matter is not closed with "+YAMLDelimiter)
	}

	raw := make(map[string]interface{})
	body, err := frontmatter.Parse(strings.NewReader(content), &raw)
	if err != nil {
		return nil, NewParseError(0, err.Error())
	}

	fields := make(map[string]Value, len(raw))
	flattenInto(fields, "", raw)
	return &FrontMatter{Fields: fields, Body: string(body), Format: FormatYAML}, nil
}

// flattenInto normalizes decoded values. Nested tables become "table.key".
func flattenInto(dst map[string]Value, prefix string, src interface{}) {
	switch m := src.(type) {
	case map[string]interface{}:
		for k, v := range m {
			flattenInto(dst, joinKey(prefix, k), v)
		}
	case map[interface{}]interface{}:
		for k, v := range m {
			flattenInto(dst, joinKey(prefix, fmt.Sprint(k)), v)
		}
	case []map[string]interface{}:
		// arrays of tables carry no scalar meaning for content metadata
	case nil:
		if prefix != "" {
			dst[prefix] = Value{}
		}
	default:
		if prefix != "" {
			dst[prefix] = toValue(m)
		}
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func toValue(v interface{}) Value {
	switch t := v.(type) {
	case []interface{}:
		list := make([]string, 0, len(t))
		for _, item := range t {
			list = append(list, scalarString(item))
		}
		return Value{List: list, IsList: true}
	case []string:
		list := make([]string, len(t))
		copy(list, t)
		return Value{List: list, IsList: true}
	default:
		return Value{Scalar: scalarString(t)}
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return formatDate(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

var keyValueLine = regexp.MustCompile(`^([\w.-]+)\s*=\s*(.+)$`)

// ParseKeyValue is the lenient reader for "key = value" blocks.
//
// Lines of the form [name] open a section. When section is empty, keys
// outside any section are returned bare and keys inside a section are
// returned as "name.key". When section is set, only that section's keys are
// returned, bare. Values wrapped in brackets are split on commas. Surrounding
// quotes are stripped. Blank lines, comments and lines matching neither form
// are ignored.
func ParseKeyValue(text, section string) map[string]Value {
	fields := make(map[string]Value)
	current := ""

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") && !strings.Contains(line, "=") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		match := keyValueLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		key, raw := match[1], strings.TrimSpace(match[2])
		switch {
		case section != "" && current != section:
			continue
		case section == "" && current != "":
			key = current + "." + key
		}

		fields[key] = parseLooseValue(raw)
	}

	return fields
}

func parseLooseValue(raw string) Value {
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		list := []string{}
		if inner == "" {
			return Value{List: list, IsList: true}
		}
		for _, item := range strings.Split(inner, ",") {
			item = unquote(item)
			if item != "" {
				list = append(list, item)
			}
		}
		return Value{List: list, IsList: true}
	}
	return Value{Scalar: unquote(raw)}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.Trim(s, `"'`))
}
