package execenv

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ComposeFile is the subset of the compose format the scheduler emits
type ComposeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]ComposeService `yaml:"services"`
	Networks map[string]ComposeNetwork `yaml:"networks,omitempty"`
}

// ComposeService is one container of a unit
type ComposeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	DependsOn     []string          `yaml:"depends_on,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	Networks      []string          `yaml:"networks,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
}

// ComposeNetwork is a private unit network
type ComposeNetwork struct {
	Driver string            `yaml:"driver,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// ComposeBuilder assembles a ComposeFile and validates it structurally
type ComposeBuilder struct {
	file ComposeFile
	errs []error
}

// NewComposeBuilder starts a document for the given project
func NewComposeBuilder(project string) *ComposeBuilder {
	return &ComposeBuilder{
		file: ComposeFile{
			Name:     project,
			Services: make(map[string]ComposeService),
			Networks: make(map[string]ComposeNetwork),
		},
	}
}

// Network declares a bridge network
func (b *ComposeBuilder) Network(name string, labels map[string]string) *ComposeBuilder {
	if _, exists := b.file.Networks[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("network %q declared twice", name))
		return b
	}
	b.file.Networks[name] = ComposeNetwork{Driver: "bridge", Labels: labels}
	return b
}

// Service adds a service
func (b *ComposeBuilder) Service(name string, svc ComposeService) *ComposeBuilder {
	if _, exists := b.file.Services[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("service %q declared twice", name))
		return b
	}
	b.file.Services[name] = svc
	return b
}

// Build validates the document and returns it
func (b *ComposeBuilder) Build() (*ComposeFile, error) {
	errs := append([]error(nil), b.errs...)
	if b.file.Name == "" {
		errs = append(errs, errors.New("project name is required"))
	}
	if len(b.file.Services) == 0 {
		errs = append(errs, errors.New("at least one service is required"))
	}
	for name, svc := range b.file.Services {
		if svc.Image == "" {
			errs = append(errs, fmt.Errorf("service %q: image is required", name))
		}
		for _, dep := range svc.DependsOn {
			if _, ok := b.file.Services[dep]; !ok {
				errs = append(errs, fmt.Errorf("service %q depends on unknown service %q", name, dep))
			}
		}
		for _, net := range svc.Networks {
			if _, ok := b.file.Networks[net]; !ok {
				errs = append(errs, fmt.Errorf("service %q joins unknown network %q", name, net))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	file := b.file
	return &file, nil
}

// Marshal serializes the document. Map keys are emitted in sorted order so
// the output is byte-stable.
func (f *ComposeFile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
