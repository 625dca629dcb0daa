package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/andy/tally/internal/domain"
)

// suggest returns up to three candidates close to input, nearest first.
func suggest(input string, candidates []string) []string {
	in := strings.ToLower(strings.TrimSpace(input))
	limit := max(2, len(in)/3)

	type scored struct {
		name string
		dist int
	}
	var hits []scored
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		d := levenshtein.ComputeDistance(in, strings.ToLower(c))
		if d <= limit {
			hits = append(hits, scored{c, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]string, 0, 3)
	for i := 0; i < len(hits) && i < 3; i++ {
		out = append(out, hits[i].name)
	}
	return out
}

func didYouMean(names []string) string {
	if len(names) == 0 {
		return ""
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	return " (did you mean " + strings.Join(quoted, " or ") + "?)"
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.BadRequestf("invalid %s ID %q", what, s)
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part == "" {
				continue
			}
			id, err := parseID(part, what)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// resolveClient finds a client by ID or exact (case-insensitive) name.
func resolveClient(ctx context.Context, idOrName string) (*domain.Client, error) {
	repos := appInstance.Store.Repos()
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		return repos.Clients.GetByID(ctx, id)
	}

	c, err := repos.Clients.GetByName(ctx, idOrName)
	if err == nil || !domain.IsNotFound(err) {
		return c, err
	}

	clients, lerr := repos.Clients.List(ctx, true)
	if lerr != nil {
		return nil, lerr
	}
	names := make([]string, 0, len(clients))
	for _, c := range clients {
		if strings.EqualFold(c.Name, idOrName) {
			return c, nil
		}
		names = append(names, c.Name)
	}
	return nil, fmt.Errorf("%w: no client named %q%s", domain.ErrClientNotFound, idOrName, didYouMean(suggest(idOrName, names)))
}

// resolveProject finds a project by ID, by name, or by "client/project" when
// the name alone is ambiguous.
func resolveProject(ctx context.Context, ref string) (*domain.Project, error) {
	repos := appInstance.Store.Repos()
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return repos.Projects.GetByID(ctx, id)
	}

	var clientID *int64
	name := ref
	if clientRef, projectName, found := strings.Cut(ref, "/"); found {
		c, err := resolveClient(ctx, clientRef)
		if err != nil {
			return nil, err
		}
		clientID = &c.ID
		name = projectName
	}

	projects, err := repos.Projects.List(ctx, clientID, true)
	if err != nil {
		return nil, err
	}
	var matches []*domain.Project
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			matches = append(matches, p)
		}
		names = append(names, p.Name)
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("%w: no project named %q%s", domain.ErrProjectNotFound, name, didYouMean(suggest(name, names)))
	}
	return nil, domain.BadRequestf("project name %q is used by several clients; use client/project or the project ID", name)
}

// resolveInvoice accepts an invoice ID or number.
func resolveInvoice(ctx context.Context, ref string) (*domain.Invoice, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return appInstance.Invoices.Get(ctx, id)
	}
	return appInstance.Invoices.GetByNumber(ctx, ref)
}

func clientName(ctx context.Context, id int64) string {
	c, err := appInstance.Store.Repos().Clients.GetByID(ctx, id)
	if err != nil {
		return fmt.Sprintf("Client #%d", id)
	}
	return c.Name
}

func projectName(ctx context.Context, id int64) string {
	p, err := appInstance.Store.Repos().Projects.GetByID(ctx, id)
	if err != nil {
		return fmt.Sprintf("Project #%d", id)
	}
	return p.Name
}
