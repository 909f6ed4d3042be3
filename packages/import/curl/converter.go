// Package curl converts curl command lines into request files.
package curl

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

// ParsedCurl represents a parsed curl command.
type ParsedCurl struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	Form        []string
	BasicAuth   string
	UserAgent   string
	Referer     string
	Insecure    bool
	Compressed  bool
	Output      string
	MaxTime     float64 // seconds
	MaxFilesize int64
	Name        string
}

// Result is one converted command. Warnings name curl options that have no
// equivalent in a request file.
type Result struct {
	Name     string
	File     *spec.File
	Warnings []string
}

// ConvertCommand converts a single curl command.
func ConvertCommand(curlCmd string) (*Result, error) {
	parsed, err := Parse(curlCmd)
	if err != nil {
		return nil, err
	}
	return ToFile(parsed), nil
}

// ConvertFile converts every command in a file. Blank lines and # comments
// are skipped and trailing backslashes continue a command.
func ConvertFile(path string) ([]*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var commands []string
	var currentCmd strings.Builder
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			currentCmd.WriteString(strings.TrimSuffix(line, "\\"))
			currentCmd.WriteString(" ")
			continue
		}

		currentCmd.WriteString(line)
		commands = append(commands, currentCmd.String())
		currentCmd.Reset()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if currentCmd.Len() > 0 {
		commands = append(commands, currentCmd.String())
	}

	results := make([]*Result, 0, len(commands))
	for i, cmd := range commands {
		r, err := ConvertCommand(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to convert command %d: %w", i+1, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Parse parses a curl command string into a ParsedCurl struct.
func Parse(curlCmd string) (*ParsedCurl, error) {
	parsed := &ParsedCurl{
		Method:  "GET",
		Headers: make(map[string]string),
	}

	curlCmd = strings.TrimSpace(curlCmd)

	if strings.HasPrefix(curlCmd, "curl ") {
		curlCmd = strings.TrimPrefix(curlCmd, "curl ")
	} else if curlCmd == "curl" {
		return nil, fmt.Errorf("no URL specified")
	}

	tokens := tokenize(curlCmd)
	explicitMethod := false

	i := 0
	for i < len(tokens) {
		token := tokens[i]

		value := func() (string, error) {
			if i+1 >= len(tokens) {
				return "", fmt.Errorf("missing value for %s", token)
			}
			i += 2
			return tokens[i-1], nil
		}

		var err error
		switch token {
		case "-X", "--request":
			var m string
			m, err = value()
			parsed.Method = strings.ToUpper(m)
			explicitMethod = true

		case "-H", "--header":
			var header string
			if header, err = value(); err == nil {
				if key, val, ok := strings.Cut(header, ":"); ok {
					parsed.Headers[strings.TrimSpace(key)] = strings.TrimSpace(val)
				}
			}

		case "-d", "--data", "--data-raw", "--data-binary", "--json":
			if parsed.Body, err = value(); err == nil && !explicitMethod {
				parsed.Method = "POST"
			}

		case "-F", "--form":
			var field string
			if field, err = value(); err == nil {
				parsed.Form = append(parsed.Form, field)
				if !explicitMethod {
					parsed.Method = "POST"
				}
			}

		case "-u", "--user":
			parsed.BasicAuth, err = value()

		case "-A", "--user-agent":
			parsed.UserAgent, err = value()

		case "-e", "--referer":
			parsed.Referer, err = value()

		case "-b", "--cookie":
			var cookie string
			if cookie, err = value(); err == nil {
				parsed.Headers["Cookie"] = cookie
			}

		case "-o", "--output":
			parsed.Output, err = value()

		case "-m", "--max-time":
			var s string
			if s, err = value(); err == nil {
				if parsed.MaxTime, err = strconv.ParseFloat(s, 64); err != nil {
					err = fmt.Errorf("invalid --max-time %q", s)
				}
			}

		case "--max-filesize":
			var s string
			if s, err = value(); err == nil {
				if parsed.MaxFilesize, err = strconv.ParseInt(s, 10, 64); err != nil {
					err = fmt.Errorf("invalid --max-filesize %q", s)
				}
			}

		case "-k", "--insecure":
			parsed.Insecure = true
			i++

		case "--compressed":
			parsed.Compressed = true
			i++

		case "-L", "--location", "-s", "--silent", "-S", "--show-error", "-v", "--verbose", "-i", "--include":
			i++

		default:
			switch {
			case strings.HasPrefix(token, "-"):
				// Unknown flag, possibly with a value.
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i += 2
				} else {
					i++
				}
			default:
				if parsed.URL == "" && isURL(token) {
					parsed.URL = token
				}
				i++
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	parsed.Name = generateName(parsed.URL, parsed.Method)

	return parsed, nil
}

// ToFile converts a ParsedCurl to a request file.
func ToFile(parsed *ParsedCurl) *Result {
	r := &Result{Name: parsed.Name, File: &spec.File{URL: parsed.URL}}
	f := r.File

	for key, value := range parsed.Headers {
		switch strings.ToLower(key) {
		case "content-type", "content-length":
			// Derived from the body.
			continue
		case "accept-encoding":
			f.Compression = true
			continue
		}
		if f.Headers == nil {
			f.Headers = make(map[string]string)
		}
		f.Headers[key] = value
	}

	if parsed.BasicAuth != "" {
		f.Auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(parsed.BasicAuth))
	}
	f.UserAgent = parsed.UserAgent
	f.Referer = parsed.Referer
	f.Compression = f.Compression || parsed.Compressed
	f.Destination = parsed.Output

	if parsed.MaxTime > 0 {
		f.Timeout = int64(parsed.MaxTime * 1000)
	}
	if parsed.MaxFilesize > 0 {
		f.MaxSize = parsed.MaxFilesize
	}

	if parsed.Body != "" {
		var body any
		if err := json.Unmarshal([]byte(parsed.Body), &body); err != nil {
			r.Warnings = append(r.Warnings, "request body is not JSON and was dropped")
		} else {
			f.Body = body
		}
	}

	for _, field := range parsed.Form {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			r.Warnings = append(r.Warnings, fmt.Sprintf("form field %q has no value and was dropped", field))
			continue
		}
		part := spec.Part{Name: name}
		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			part.File = path
		} else {
			part.Data = value
		}
		f.Form = append(f.Form, part)
	}
	if f.Body != nil && len(f.Form) > 0 {
		r.Warnings = append(r.Warnings, "both a body and form fields were given, the body was dropped")
		f.Body = nil
	}

	implied := "GET"
	if f.Body != nil || len(f.Form) > 0 {
		implied = "POST"
	}
	if parsed.Method != implied {
		r.Warnings = append(r.Warnings, fmt.Sprintf("method %s cannot be expressed, the request will use %s", parsed.Method, implied))
	}
	if parsed.Insecure {
		r.Warnings = append(r.Warnings, "--insecure is a client setting, pass -k to hitfetch instead")
	}

	return r
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inSingleQuote {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case '\'':
			if !inDoubleQuote {
				inSingleQuote = !inSingleQuote
			} else {
				current.WriteRune(r)
			}
		case '"':
			if !inSingleQuote {
				inDoubleQuote = !inDoubleQuote
			} else {
				current.WriteRune(r)
			}
		case ' ', '\t', '\n':
			if inSingleQuote || inDoubleQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "{{")
}

var urlPathPattern = regexp.MustCompile(`https?://[^/]+(/[^?#]*)?`)

// generateName derives a file-friendly name such as get_users_profile.
func generateName(url, method string) string {
	matches := urlPathPattern.FindStringSubmatch(url)

	path := "/"
	if len(matches) > 1 && matches[1] != "" {
		path = matches[1]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		path = "root"
	}

	return sanitizeName(strings.ToLower(method) + "_" + path)
}

var nonIdentifier = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func sanitizeName(name string) string {
	return strings.Trim(nonIdentifier.ReplaceAllString(name, "_"), "_")
}
