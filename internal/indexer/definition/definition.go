// Package definition runs indexers described by YAML files: where to log
// in, how to search and which selectors turn a result page into releases.
package definition

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Response formats
const (
	FormatHTML = "html"
	FormatJSON = "json"
)

// Login methods
const (
	LoginPost   = "post"
	LoginCookie = "cookie"
)

// Definition is one parsed YAML file.
type Definition struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Links       []string `yaml:"links"`
	Encoding    string   `yaml:"encoding"`

	// Categories maps site category ids to category names like "Movies/HD".
	Categories map[string]string `yaml:"categories"`

	Login  *Login `yaml:"login"`
	Search Search `yaml:"search"`
}

// Login describes how a session is obtained.
type Login struct {
	Path   string            `yaml:"path"`
	Method string            `yaml:"method"`
	Inputs map[string]string `yaml:"inputs"`
	// Cookies lists cookie names a valid session must carry.
	Cookies []string `yaml:"cookies"`
	// Error is a selector whose presence on the response means failure.
	Error string `yaml:"error"`
	Test  *Test  `yaml:"test"`
}

// Test is a page that only renders Selector for logged-in users.
type Test struct {
	Path     string `yaml:"path"`
	Selector string `yaml:"selector"`
}

// Search describes the search request and how to read its response.
type Search struct {
	Path   string            `yaml:"path"`
	Method string            `yaml:"method"`
	Params map[string]string `yaml:"params"`
	// Format is html (default) or json.
	Format string `yaml:"format"`
	// Rows is a CSS selector in html mode and a gjson path in json mode.
	Rows string `yaml:"rows"`
	// After skips leading rows, typically a header.
	After  int              `yaml:"after"`
	Fields map[string]Field `yaml:"fields"`
}

// Field extracts one value from a row. In html mode Selector is CSS and
// Attribute names the attribute to read instead of the text. In json mode
// Selector is a gjson path relative to the row.
type Field struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"`
	Text      string `yaml:"text"`
	Default   string `yaml:"default"`
	Optional  bool   `yaml:"optional"`
}

// UnmarshalYAML accepts either a mapping or the "selector@attribute"
// shorthand.
func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		sel, attr, _ := strings.Cut(value.Value, "@")
		f.Selector = strings.TrimSpace(sel)
		f.Attribute = strings.TrimSpace(attr)
		return nil
	}
	type plain Field
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

// Parse decodes and validates a definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func (d *Definition) validate() error {
	var errs []error

	d.Search.Format = strings.ToLower(d.Search.Format)
	if d.Search.Format == "" {
		d.Search.Format = FormatHTML
	}
	if d.Search.Format != FormatHTML && d.Search.Format != FormatJSON {
		errs = append(errs, fmt.Errorf("unsupported search format %q", d.Search.Format))
	}
	if d.Search.Path == "" {
		errs = append(errs, errors.New("search.path is required"))
	}
	if d.Search.Rows == "" {
		errs = append(errs, errors.New("search.rows is required"))
	}
	if _, ok := d.Search.Fields["title"]; !ok {
		errs = append(errs, errors.New("search.fields.title is required"))
	}
	_, hasDownload := d.Search.Fields["download"]
	_, hasMagnet := d.Search.Fields["magnet"]
	if !hasDownload && !hasMagnet {
		errs = append(errs, errors.New("search.fields needs download or magnet"))
	}

	if d.Login != nil {
		d.Login.Method = strings.ToLower(d.Login.Method)
		if d.Login.Method == "" {
			d.Login.Method = LoginPost
		}
		switch d.Login.Method {
		case LoginPost:
			if d.Login.Path == "" {
				errs = append(errs, errors.New("login.path is required"))
			}
		case LoginCookie:
		default:
			errs = append(errs, fmt.Errorf("unsupported login method %q", d.Login.Method))
		}
	}

	return errors.Join(errs...)
}

// BaseURL is the first link, if any.
func (d *Definition) BaseURL() string {
	if len(d.Links) == 0 {
		return ""
	}
	return strings.TrimRight(d.Links[0], "/")
}

// HasLogin reports whether the site needs a session.
func (d *Definition) HasLogin() bool {
	return d.Login != nil
}
