package knock

import (
	"bytes"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"regexp"
	"strconv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IDirectoryParser turns a Knock user listing into records.
// more reports that the listing has further pages.
type IDirectoryParser interface {
	Name() string
	ParseUsers(body []byte) (users []*RemoteUser, more bool, err error)
	Pretty(body []byte) string
}

// NewDirectoryParser picks the parser strategy once at startup
func NewDirectoryParser(name string) (parser IDirectoryParser, err error) {
	switch name {
	case "", ParserStructured:
		parser = new(structuredParser)
	case ParserPattern:
		parser = new(patternParser)
	default:
		err = fmt.Errorf("%w: %s must be \"%s\" or \"%s\", got \"%s\"",
			ErrConfigurationInvalid, EnvParser, ParserStructured, ParserPattern, name)
	}
	return
}

type structuredParser struct{}

func (p *structuredParser) Name() string {
	return ParserStructured
}

type userListing struct {
	Entries  []map[string]any `json:"entries"`
	PageInfo *struct {
		After *string `json:"after"`
	} `json:"page_info"`
}

func parseKnockUser(userObject map[string]any) (result *RemoteUser) {
	var ok bool
	var userId string
	if userId, ok = toString(userObject["id"]); !ok || len(userId) == 0 {
		return
	}
	result = &RemoteUser{Id: userId}
	result.Email, _ = toString(userObject["email"])
	result.Name, _ = toString(userObject["name"])

	var properties map[string]any
	if properties, ok = userObject["properties"].(map[string]any); ok {
		if len(result.Email) == 0 {
			result.Email, _ = toString(properties["email"])
		}
		if len(result.Name) == 0 {
			result.Name, _ = toString(properties["name"])
		}
	}
	return
}

func (p *structuredParser) ParseUsers(body []byte) (users []*RemoteUser, more bool, err error) {
	var listing userListing
	if err = json.Unmarshal(body, &listing); err != nil {
		err = fmt.Errorf("parse Knock user listing: %w", err)
		return
	}
	for _, entry := range listing.Entries {
		if user := parseKnockUser(entry); user != nil {
			users = append(users, user)
		}
	}
	more = listing.PageInfo != nil && listing.PageInfo.After != nil && len(*listing.PageInfo.After) > 0
	return
}

func (p *structuredParser) Pretty(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	var data, err = json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(data)
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// patternParser only recovers identifiers of the top-level entries
type patternParser struct{}

func (p *patternParser) Name() string {
	return ParserPattern
}

type jsonFrame struct {
	kind byte
	key  string
}

// entryMembers reports for each offset whether it is a member position of an
// object directly inside the top-level "entries" array. offsets are ascending.
func entryMembers(body []byte, offsets []int) (result []bool) {
	result = make([]bool, len(offsets))
	var stack []jsonFrame
	var inString, escaped, afterColon bool
	var strStart int
	var lastString, pendingKey string
	var next = 0
	for i := 0; i < len(body) && next < len(offsets); i++ {
		for next < len(offsets) && offsets[next] == i {
			result[next] = !inString && len(stack) == 3 &&
				stack[0].kind == '{' && stack[1].kind == '[' && stack[1].key == "entries" && stack[2].kind == '{'
			next++
		}
		var c = body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				lastString = string(body[strStart:i])
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			strStart = i + 1
		case '{', '[':
			var frame = jsonFrame{kind: c}
			if afterColon {
				frame.key = pendingKey
			}
			stack = append(stack, frame)
			afterColon = false
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			afterColon = false
		case ':':
			afterColon = true
			pendingKey = lastString
		case ' ', '\t', '\r', '\n':
		default:
			afterColon = false
		}
	}
	return
}

func (p *patternParser) ParseUsers(body []byte) (users []*RemoteUser, more bool, err error) {
	var matches = idPattern.FindAllSubmatchIndex(body, -1)
	var offsets = make([]int, len(matches))
	for i, m := range matches {
		offsets[i] = m[0]
	}
	var members = entryMembers(body, offsets)
	for i, m := range matches {
		if !members[i] {
			continue
		}
		var raw = body[m[2]:m[3]]
		var id = string(raw)
		if bytes.IndexByte(raw, '\\') >= 0 {
			if uq, er1 := strconv.Unquote(`"` + id + `"`); er1 == nil {
				id = uq
			}
		}
		if len(id) > 0 {
			users = append(users, &RemoteUser{Id: id})
		}
	}
	return
}

func (p *patternParser) Pretty(body []byte) string {
	return string(body)
}

// uniqueUsers drops repeated identifiers, first occurrence wins
func uniqueUsers(users []*RemoteUser) (result []*RemoteUser) {
	var seen = NewSet[string]()
	for _, u := range users {
		if seen.Has(u.Id) {
			continue
		}
		seen.Add(u.Id)
		result = append(result, u)
	}
	return
}
