// Package markup turns a streamed model response into session records.
//
// Plain text becomes conversational records. A line-terminated opening tag
// such as "<file path>" starts an artifact record whose body is kept verbatim
// until the matching closing tag. Feeding a response in any chunking yields
// the same records.
package markup

import (
	"fmt"
	"strings"

	"github.com/aretw0/tasktree/pkg/domain"
)

// MaxMarkupLen caps how many bytes an opening tag candidate may span before it folds back into text.
const MaxMarkupLen = 256

// Target receives the records produced by a parser.
// *session.Session satisfies it.
type Target interface {
	Append(rec domain.Record) string
	Update(id string, fn func(*domain.Record)) bool
	Remove(id string)
}

type state int

const (
	plainText state = iota
	scanningMarkup
	insideArtifact
)

var heads = []string{"<file", "<diff", "<task_graph"}

// Error reports a markup failure. It unwraps to domain.ErrNotFound.
type Error struct {
	Tag    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("markup <%s>: %s", e.Tag, e.Reason)
}

func (e *Error) Unwrap() error { return domain.ErrNotFound }

// Parser is the incremental response parser for one turn. It is not safe for concurrent use.
type Parser struct {
	target Target
	sender string

	state  state
	markup strings.Builder

	// open conversational record
	convID   string
	convText strings.Builder

	// open artifact record
	artID   string
	artKind domain.ArtifactType
	artBody strings.Builder
	closer  string

	meta     map[string]string
	produced []string
	finished bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMetadata copies meta onto every record the parser opens.
func WithMetadata(meta map[string]string) ParserOption {
	return func(p *Parser) {
		for k, v := range meta {
			p.meta[k] = v
		}
	}
}

// NewParser creates a parser writing records on behalf of sender.
// The first conversational record is opened immediately.
func NewParser(target Target, sender string, opts ...ParserOption) *Parser {
	p := &Parser{target: target, sender: sender, meta: make(map[string]string)}
	for _, opt := range opts {
		opt(p)
	}
	p.openConversation()
	return p
}

func (p *Parser) metadata(extra map[string]string) map[string]string {
	if len(p.meta) == 0 && len(extra) == 0 {
		return nil
	}
	m := make(map[string]string, len(p.meta)+len(extra))
	for k, v := range p.meta {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// Produced returns the IDs of the records this turn created and kept, in order.
func (p *Parser) Produced() []string {
	return append([]string{}, p.produced...)
}

func (p *Parser) openConversation() {
	p.convText.Reset()
	p.convID = p.target.Append(domain.Record{
		Sender:    p.sender,
		Kind:      domain.RecordConversational,
		InContext: true,
		InDisplay: true,
		Metadata:  p.metadata(nil),
	})
	p.produced = append(p.produced, p.convID)
}

func (p *Parser) forget(id string) {
	for i, v := range p.produced {
		if v == id {
			p.produced = append(p.produced[:i], p.produced[i+1:]...)
			return
		}
	}
}

// closeConversation drops the open conversational record when it holds only whitespace
// and seals it otherwise.
func (p *Parser) closeConversation() {
	if p.convID == "" {
		return
	}
	if strings.TrimSpace(p.convText.String()) == "" {
		p.target.Remove(p.convID)
		p.forget(p.convID)
	} else {
		p.target.Update(p.convID, func(r *domain.Record) { r.Sealed = true })
	}
	p.convID = ""
	p.convText.Reset()
}

func (p *Parser) appendText(s string) {
	if s == "" {
		return
	}
	if p.convText.Len() == 0 {
		s = strings.TrimLeft(s, "\r\n")
		if s == "" {
			return
		}
	}
	p.convText.WriteString(s)
	text := p.convText.String()
	p.target.Update(p.convID, func(r *domain.Record) { r.Content = text })
}

// Feed consumes one chunk of the response.
func (p *Parser) Feed(chunk string) error {
	if p.finished {
		return fmt.Errorf("%w: parser already finished", domain.ErrState)
	}
	for len(chunk) > 0 {
		var err error
		switch p.state {
		case plainText:
			chunk = p.scanText(chunk)
		case scanningMarkup:
			chunk, err = p.scanMarkup(chunk)
		case insideArtifact:
			chunk = p.scanArtifact(chunk)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) scanText(s string) string {
	i := strings.IndexByte(s, '<')
	if i < 0 {
		p.appendText(s)
		return ""
	}
	p.appendText(s[:i])
	p.state = scanningMarkup
	p.markup.Reset()
	return s[i:]
}

type verdict int

const (
	needMore verdict = iota
	reject
	accept
)

func (p *Parser) scanMarkup(s string) (string, error) {
	for i := 0; i < len(s); i++ {
		p.markup.WriteByte(s[i])
		buf := p.markup.String()
		v, kind, filename := classify(buf)
		switch v {
		case needMore:
			continue
		case reject:
			// No tag starts at this '<'; rescan what follows it.
			p.state = plainText
			p.markup.Reset()
			p.appendText(buf[:1])
			return buf[1:] + s[i+1:], nil
		case accept:
			p.markup.Reset()
			if (kind == domain.ArtifactFile || kind == domain.ArtifactDiff) && filename == "" {
				p.state = plainText
				return "", &Error{Tag: string(kind), Reason: "missing required filename"}
			}
			p.openArtifact(kind, filename)
			return s[i+1:], nil
		}
	}
	return "", nil
}

// classify decides whether buf, which starts with '<', is a complete opening tag.
// The decision depends only on buf, so it is the same for every chunking.
func classify(buf string) (verdict, domain.ArtifactType, string) {
	if len(buf) > MaxMarkupLen {
		return reject, "", ""
	}
	j := strings.IndexByte(buf, '>')
	if j < 0 {
		if strings.IndexByte(buf, '\n') >= 0 || !compatible(buf) {
			return reject, "", ""
		}
		return needMore, "", ""
	}
	kind, filename, ok := parseTag(buf[1:j])
	if !ok {
		return reject, "", ""
	}
	if j == len(buf)-1 {
		return needMore, "", ""
	}
	if buf[j+1] != '\n' {
		return reject, "", ""
	}
	return accept, kind, filename
}

func compatible(buf string) bool {
	for _, h := range heads {
		if len(buf) <= len(h) {
			if strings.HasPrefix(h, buf) {
				return true
			}
			continue
		}
		if strings.HasPrefix(buf, h) && isBlank(buf[len(h)]) {
			return true
		}
	}
	return false
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func parseTag(inner string) (domain.ArtifactType, string, bool) {
	name, rest := inner, ""
	if k := strings.IndexAny(inner, " \t"); k >= 0 {
		name, rest = inner[:k], inner[k+1:]
	}
	switch kind := domain.ArtifactType(name); kind {
	case domain.ArtifactFile, domain.ArtifactDiff, domain.ArtifactTaskGraph:
		filename := strings.TrimSpace(rest)
		if strings.ContainsAny(filename, " \t") {
			return "", "", false
		}
		return kind, filename, true
	}
	return "", "", false
}

func (p *Parser) openArtifact(kind domain.ArtifactType, filename string) {
	p.closeConversation()

	meta := map[string]string{domain.MetaType: string(kind)}
	if filename != "" {
		meta[domain.MetaFilename] = filename
	}
	p.artKind = kind
	p.closer = "</" + string(kind) + ">"
	p.artBody.Reset()
	p.artID = p.target.Append(domain.Record{
		Sender:    p.sender,
		Kind:      domain.RecordArtifact,
		InContext: true,
		InDisplay: true,
		Metadata:  p.metadata(meta),
	})
	p.produced = append(p.produced, p.artID)
	p.state = insideArtifact
}

func (p *Parser) scanArtifact(s string) string {
	p.artBody.WriteString(s)
	body := p.artBody.String()

	if k := strings.Index(body, p.closer); k >= 0 {
		content := body[:k]
		rest := body[k+len(p.closer):]
		p.target.Update(p.artID, func(r *domain.Record) {
			r.Content = content
			r.Sealed = true
		})
		p.artID = ""
		p.artBody.Reset()
		p.state = plainText
		p.openConversation()
		return rest
	}

	// Hold back a suffix that may still grow into the closing tag.
	safe := body[:len(body)-partialSuffix(body, p.closer)]
	p.target.Update(p.artID, func(r *domain.Record) { r.Content = safe })
	return ""
}

// partialSuffix returns the length of the longest suffix of s that is a proper prefix of tag.
func partialSuffix(s, tag string) int {
	for n := min(len(tag)-1, len(s)); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

// Finish ends the turn. Pending markup folds back into text, a trailing empty
// record is discarded and every record is sealed. An unterminated artifact is
// sealed with the incomplete flag and reported as an error.
func (p *Parser) Finish() error {
	if p.finished {
		return nil
	}
	p.finished = true

	var err error
	switch p.state {
	case scanningMarkup:
		p.appendText(p.markup.String())
		p.markup.Reset()
	case insideArtifact:
		body := p.artBody.String()
		p.target.Update(p.artID, func(r *domain.Record) {
			r.Content = body
			r.Metadata[domain.MetaIncomplete] = "true"
			r.Sealed = true
		})
		err = &Error{Tag: string(p.artKind), Reason: "missing closing tag " + p.closer}
		p.artID = ""
	}
	p.state = plainText
	p.closeConversation()
	return err
}
