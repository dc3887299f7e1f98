package types

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// NameSeparator joins the names of a job path into its full name.
const NameSeparator = " > "

// Node is implemented by *Suite and *Test.
type Node interface {
	Base() *Job
	CanRun() bool
}

// Job is the part shared by suites and tests.
type Job struct {
	ID       string
	Name     string
	FullName string
	Parent   *Suite
	Config   JobConfig

	// Tags holds the ordinary and config tags, SpecialTags the skip/only/debug/todo ones.
	Tags        []*Tag
	SpecialTags []*Tag
	TagNames    []string

	// Only is set by an only or debug tag.
	Only  bool
	Debug bool

	// Visited is the scheduler cursor: entered children for suites, runs for tests.
	Visited int
}

// NewJob resolves tags against the parent config. It does not validate name,
// the registering caller does.
func NewJob(parent *Suite, name string, tags []*Tag) Job {
	j := Job{Name: name, Parent: parent}
	if parent != nil {
		j.Config = parent.Config.Clone()
	} else {
		j.Config = DefaultJobConfig()
	}

	seen := make(map[*Tag]bool, len(tags))
	var skip bool
	for _, tag := range tags {
		if tag == nil || seen[tag] {
			continue
		}
		seen[tag] = true
		j.TagNames = append(j.TagNames, tag.Name)
		if !tag.Special {
			j.Tags = append(j.Tags, tag)
			if tag.Config != nil {
				tag.Config.Apply(&j.Config)
			}
			continue
		}
		j.SpecialTags = append(j.SpecialTags, tag)
		switch tag.Name {
		case TagDebug:
			j.Debug = true
			j.Only = true
		case TagOnly:
			j.Only = true
		case TagSkip:
			skip = true
		case TagTodo:
			j.Config.Todo = true
		}
	}

	// only wins over skip, on the job itself or anywhere above it.
	if j.Only || (parent != nil && parent.onlyInPath()) {
		j.Config.Skip = false
	} else if skip {
		j.Config.Skip = true
	}

	names := []string{name}
	for p := parent; p != nil; p = p.Parent {
		names = append(names, p.Name)
	}
	for i, k := 0, len(names)-1; i < k; i, k = i+1, k-1 {
		names[i], names[k] = names[k], names[i]
	}
	j.FullName = strings.Join(names, NameSeparator)
	j.ID = HashID(j.FullName)
	return j
}

// HashID is the FNV-1a hash of a full name as 8 hex characters.
func HashID(fullName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fullName))
	return fmt.Sprintf("%08x", h.Sum32())
}

// Base implements Node.
func (j *Job) Base() *Job {
	return j
}

// Path returns the jobs from the root down to j.
func (j *Job) Path() []*Job {
	path := []*Job{j}
	for p := j.Parent; p != nil; p = p.Parent {
		path = append(path, &p.Job)
	}
	for i, k := 0, len(path)-1; i < k; i, k = i+1, k-1 {
		path[i], path[k] = path[k], path[i]
	}
	return path
}

// HasTag reports whether the job was declared with the named tag.
func (j *Job) HasTag(name string) bool {
	for _, n := range j.TagNames {
		if n == name {
			return true
		}
	}
	return false
}

// Depth is 0 for root jobs.
func (j *Job) Depth() int {
	d := 0
	for p := j.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

func (j *Job) onlyInPath() bool {
	for p := j; p != nil; {
		if p.Only {
			return true
		}
		if p.Parent == nil {
			return false
		}
		p = &p.Parent.Job
	}
	return false
}
