package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/faq"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
)

const DefaultTimeout = 5 * time.Second

// DefaultAllowed lists the tools each specialist may request.
var DefaultAllowed = map[contractx.SpecialistKind][]string{
	contractx.SpecialistBooking:      {ToolCheckAvailability, ToolCreateBooking, ToolFindAvailableSlots},
	contractx.SpecialistCancellation: {ToolCancelBooking},
	contractx.SpecialistRescheduling: {ToolRescheduleBooking, ToolFindAvailableSlots, ToolCheckAvailability},
	contractx.SpecialistFAQ:          {ToolAnswerFAQ},
}

var _ contractx.ToolGateway = (*Registry)(nil)

// Registry is the fixed tool-name to handler mapping the orchestrator
// invokes on behalf of specialists.
type Registry struct {
	tools   map[string]*Tool
	order   []string
	allowed map[contractx.SpecialistKind]map[string]bool
	timeout time.Duration

	publisher contractx.EventPublisher
	extra     []*Tool
}

type Option func(*Registry)

func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPublisher emits appointment events after successful bookings,
// cancellations and reschedules.
func WithPublisher(p contractx.EventPublisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithTool adds t or replaces the clinic tool of the same name.
func WithTool(t *Tool) Option {
	return func(r *Registry) {
		if t != nil {
			r.extra = append(r.extra, t)
		}
	}
}

// WithAllowed replaces origin's allow-list.
func WithAllowed(origin contractx.SpecialistKind, tools ...string) Option {
	return func(r *Registry) {
		set := make(map[string]bool, len(tools))
		for _, name := range tools {
			set[name] = true
		}
		r.allowed[origin] = set
	}
}

// New registers the clinic tools against svc and kb. kb may be nil, in which
// case answer_faq always returns the no-answer text.
func New(svc *schedule.Service, kb *faq.KnowledgeBase, opts ...Option) (*Registry, error) {
	if svc == nil {
		return nil, fmt.Errorf("tool registry needs a schedule service")
	}

	r := &Registry{
		tools:   map[string]*Tool{},
		allowed: map[contractx.SpecialistKind]map[string]bool{},
		timeout: DefaultTimeout,
	}
	for origin, names := range DefaultAllowed {
		WithAllowed(origin, names...)(r)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	c := &clinic{svc: svc, kb: kb, publisher: r.publisher}
	tools, err := c.tools()
	if err != nil {
		return nil, err
	}
	for _, t := range append(tools, r.extra...) {
		r.register(t)
	}
	return r, nil
}

func (r *Registry) register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Tool(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Allowed(origin contractx.SpecialistKind, name string) bool {
	return r.allowed[origin][name]
}

// Validate resolves req to a tool origin may use and checks its arguments.
func (r *Registry) Validate(origin contractx.SpecialistKind, req contractx.ToolRequest) error {
	_, _, err := r.prepare(origin, req)
	return err
}

func (r *Registry) prepare(origin contractx.SpecialistKind, req contractx.ToolRequest) (*Tool, any, error) {
	name := strings.TrimSpace(req.Tool)
	t, ok := r.tools[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown tool=%q", contractx.ErrInvalidToolArgs, req.Tool)
	}
	if !r.Allowed(origin, name) {
		return nil, nil, fmt.Errorf("%w: tool=%s is not available to specialist=%s", contractx.ErrInvalidToolArgs, name, origin)
	}
	args, err := t.Check(req.Args)
	if err != nil {
		return nil, nil, err
	}
	return t, args, nil
}

type outcome struct {
	value any
	err   error
}

// Invoke validates and runs req under the registry timeout. Domain failures
// and timeouts come back inside the ToolResult. The error return carries
// InvalidToolArgs or the cancellation of ctx itself.
func (r *Registry) Invoke(ctx context.Context, origin contractx.SpecialistKind, req contractx.ToolRequest) (contractx.ToolResult, error) {
	t, args, err := r.prepare(origin, req)
	if err != nil {
		return contractx.ToolResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	done := make(chan outcome, 1)
	go func() {
		v, err := t.run(callCtx, args)
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return contractx.ToolResult{}, err
		}
		log.Warn().Str("tool", t.Name).Str("origin", string(origin)).Dur("timeout", r.timeout).Msg("tool timed out")
		return contractx.ToolResult{
			Tool:      t.Name,
			Error:     fmt.Sprintf("%s did not answer within %s", t.Name, r.timeout),
			ErrorKind: contractx.KindToolTimeout,
		}, nil
	}

	logger := log.With().Str("tool", t.Name).Str("origin", string(origin)).Dur("elapsed", time.Since(started)).Logger()
	if out.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.ToolResult{}, ctxErr
		}
		kind := kindFor(out.err)
		logger.Warn().Err(out.err).Str("error_kind", string(kind)).Msg("tool failed")
		return contractx.ToolResult{Tool: t.Name, Error: describe(t.Name, out.err), ErrorKind: kind}, nil
	}

	payload, err := json.Marshal(out.value)
	if err != nil {
		logger.Error().Err(err).Msg("tool result not encodable")
		return contractx.ToolResult{Tool: t.Name, Error: describe(t.Name, err), ErrorKind: contractx.KindToolFailure}, nil
	}
	logger.Debug().Msg("tool succeeded")
	return contractx.ToolResult{Tool: t.Name, Result: payload}, nil
}

// Infos describes the tools origin may call, for binding to a chat model.
// An empty origin lists every tool.
func (r *Registry) Infos(origin contractx.SpecialistKind) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		if origin != "" && !r.Allowed(origin, name) {
			continue
		}
		out = append(out, r.tools[name].Info())
	}
	return out
}

// Info converts the reflected JSON schema into eino parameter infos.
func (t *Tool) Info() *schema.ToolInfo {
	required := make(map[string]bool, len(t.Schema.Required))
	for _, name := range t.Schema.Required {
		required[name] = true
	}

	params := map[string]*schema.ParameterInfo{}
	if t.Schema.Properties != nil {
		for pair := t.Schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			params[pair.Key] = &schema.ParameterInfo{
				Type:     dataType(pair.Value.Type),
				Desc:     pair.Value.Description,
				Required: required[pair.Key],
			}
		}
	}

	return &schema.ToolInfo{
		Name:        t.Name,
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// RequiredArgs lists the required argument names, sorted.
func (t *Tool) RequiredArgs() []string {
	out := append([]string(nil), t.Schema.Required...)
	sort.Strings(out)
	return out
}

func dataType(jsonType string) schema.DataType {
	switch jsonType {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
