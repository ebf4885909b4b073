// Package policydoc implements side-effect-free transforms on AWS-style
// JSON policy documents (bucket policies, access point policies, IAM inline
// policies, KMS key policies). All mutations are keyed by statement Sid and
// are idempotent: applying the same transform twice yields the same document.
package policydoc

import (
	"encoding/json"
	"fmt"
	"slices"
)

const DefaultVersion = "2012-10-17"

type Document struct {
	Version   string       `json:"Version"`
	Id        string       `json:"Id,omitempty"`
	Statement []*Statement `json:"Statement"`
}

type Statement struct {
	Sid       string                             `json:"Sid,omitempty"`
	Effect    string                             `json:"Effect"`
	Principal json.RawMessage                    `json:"Principal,omitempty"`
	Action    StringOrList                       `json:"Action,omitempty"`
	Resource  StringOrList                       `json:"Resource,omitempty"`
	Condition map[string]map[string]StringOrList `json:"Condition,omitempty"`
}

// StringOrList is a policy field that AWS serializes either as a single
// string or as a list of strings. It always unmarshals to a list so callers
// never branch on the wire shape and never drop sibling values on mutation.
type StringOrList []string

func (s *StringOrList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringOrList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("field is neither a string nor a list of strings: %w", err)
	}

	*s = list

	return nil
}

// Parse decodes a policy document. An empty input yields a fresh document
// with the default version and no statements.
func Parse(raw string) (*Document, error) {
	if raw == "" {
		return New(), nil
	}

	doc := &Document{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}

	if doc.Version == "" {
		doc.Version = DefaultVersion
	}

	return doc, nil
}

func New(statements ...*Statement) *Document {
	return &Document{
		Version:   DefaultVersion,
		Statement: statements,
	}
}

func (d *Document) Marshal() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshalling policy document: %w", err)
	}

	return string(data), nil
}

// FindStatement returns the statement with the given Sid, or false when no
// such statement exists.
func (d *Document) FindStatement(sid string) (*Statement, bool) {
	for _, stmt := range d.Statement {
		if stmt.Sid == sid {
			return stmt, true
		}
	}

	return nil, false
}

func (d *Document) HasStatement(sid string) bool {
	_, found := d.FindStatement(sid)
	return found
}

// UpsertStatement appends the statement when no statement with its Sid is
// present yet. An existing statement with the same Sid is left untouched.
func (d *Document) UpsertStatement(stmt *Statement) {
	if d.HasStatement(stmt.Sid) {
		return
	}

	d.Statement = append(d.Statement, stmt)
}

// RemoveStatement removes every statement carrying the given Sid.
func (d *Document) RemoveStatement(sid string) {
	d.Statement = slices.DeleteFunc(d.Statement, func(stmt *Statement) bool {
		return stmt.Sid == sid
	})
}

// MergeResources adds each resource not already present to the Resource list
// of the statement identified by sid. Unknown Sids are a no-op so callers can
// merge unconditionally after an upsert.
func (d *Document) MergeResources(sid string, resources ...string) {
	stmt, found := d.FindStatement(sid)
	if !found {
		return
	}

	for _, resource := range resources {
		if !slices.Contains(stmt.Resource, resource) {
			stmt.Resource = append(stmt.Resource, resource)
		}
	}
}

// RemoveResources removes the named resources from the statement's Resource
// list. A statement whose list becomes empty is removed from the document.
func (d *Document) RemoveResources(sid string, resources ...string) {
	stmt, found := d.FindStatement(sid)
	if !found {
		return
	}

	stmt.Resource = slices.DeleteFunc(stmt.Resource, func(r string) bool {
		return slices.Contains(resources, r)
	})

	if len(stmt.Resource) == 0 {
		d.RemoveStatement(sid)
	}
}

func (d *Document) StatementCount() int {
	return len(d.Statement)
}

// ConditionValues returns the value list of a condition entry such as
// ("StringLike", "s3:prefix"), normalized to a list.
func (s *Statement) ConditionValues(operator string, key string) []string {
	if s.Condition == nil {
		return nil
	}

	return s.Condition[operator][key]
}

// SetConditionValues replaces the value list of a condition entry, creating
// the operator map when needed.
func (s *Statement) SetConditionValues(operator string, key string, values []string) {
	if s.Condition == nil {
		s.Condition = map[string]map[string]StringOrList{}
	}

	if s.Condition[operator] == nil {
		s.Condition[operator] = map[string]StringOrList{}
	}

	s.Condition[operator][key] = values
}

// AddConditionValue appends a value to a condition entry when absent.
func (s *Statement) AddConditionValue(operator string, key string, value string) {
	values := s.ConditionValues(operator, key)
	if slices.Contains(values, value) {
		return
	}

	s.SetConditionValues(operator, key, append(values, value))
}

// RemoveConditionValue removes a value from a condition entry. It reports
// whether the value was present.
func (s *Statement) RemoveConditionValue(operator string, key string, value string) bool {
	values := s.ConditionValues(operator, key)
	if !slices.Contains(values, value) {
		return false
	}

	s.SetConditionValues(operator, key, slices.DeleteFunc(values, func(v string) bool {
		return v == value
	}))

	return true
}

// AWSPrincipal renders a Principal clause of the form {"AWS": "..."}.
func AWSPrincipal(principal string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"AWS": principal})
	return data
}

// AnyPrincipal renders the wildcard Principal clause "*".
func AnyPrincipal() json.RawMessage {
	return json.RawMessage(`"*"`)
}
