// Package lifecycle tracks the creation order of GPU objects so that they can
// be released in exactly the reverse order.
package lifecycle

import (
	"github.com/cockroachdb/errors"
)

type entry struct {
	name    string
	destroy func()
}

// Stack records destructors as objects are created. Unwind runs them last in,
// first out.
type Stack struct {
	entries []entry
}

func (s *Stack) Push(name string, destroy func()) {
	s.entries = append(s.entries, entry{name: name, destroy: destroy})
}

// Unwind destroys everything pushed so far, newest first. It may be called
// more than once.
func (s *Stack) Unwind() {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].destroy != nil {
			s.entries[i].destroy()
		}
	}
	s.entries = s.entries[:0]
}

func (s *Stack) Len() int {
	return len(s.entries)
}

// Names lists the pushed entries in creation order.
func (s *Stack) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Stage is one step of a Plan. After lists the stages that must already exist
// when Create runs.
type Stage struct {
	Name    string
	After   []string
	Create  func() error
	Destroy func()
}

// Plan is a validated, dependency-ordered list of stages. Build creates them
// front to back; Teardown destroys them back to front.
type Plan struct {
	stages  []Stage
	created int
}

// NewPlan checks that stage names are unique and that every dependency names a
// stage listed earlier.
func NewPlan(stages ...Stage) (*Plan, error) {
	seen := make(map[string]bool, len(stages))
	for i, stage := range stages {
		if stage.Name == "" {
			return nil, errors.Newf("lifecycle: stage %d has no name", i)
		}
		if seen[stage.Name] {
			return nil, errors.Newf("lifecycle: duplicate stage %q", stage.Name)
		}
		if stage.Create == nil {
			return nil, errors.Newf("lifecycle: stage %q has no create step", stage.Name)
		}
		for _, dep := range stage.After {
			if !seen[dep] {
				return nil, errors.Newf("lifecycle: stage %q depends on %q, which is not created before it", stage.Name, dep)
			}
		}
		seen[stage.Name] = true
	}

	return &Plan{stages: stages}, nil
}

// Build runs every create step in order. If one fails, the stages that were
// already created are destroyed before the error is returned.
func (p *Plan) Build() error {
	if p.created != 0 {
		return errors.New("lifecycle: plan already built")
	}
	for _, stage := range p.stages {
		if err := stage.Create(); err != nil {
			p.Teardown()
			return errors.Wrapf(err, "create %s", stage.Name)
		}
		p.created++
	}
	return nil
}

// Teardown destroys the created stages in reverse order. A torn down plan can
// be built again.
func (p *Plan) Teardown() {
	for i := p.created - 1; i >= 0; i-- {
		if p.stages[i].Destroy != nil {
			p.stages[i].Destroy()
		}
	}
	p.created = 0
}

func (p *Plan) Built() bool {
	return p.created == len(p.stages)
}

func (p *Plan) Names() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name
	}
	return names
}

func (p *Plan) TeardownOrder() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[len(p.stages)-1-i] = stage.Name
	}
	return names
}
