package league

import "strconv"

const (
	DefaultLeagueName  = "Fantasy League"
	DefaultMemberLabel = "Manager"
)

type Meta struct {
	LeagueName string `json:"leagueName"`
	Season     int    `json:"season"`
}

type Team struct {
	ID    any     `json:"id"`
	Name  string  `json:"name"`
	Logo  *string `json:"logo"`
	Owner string  `json:"owner"`
}

// League is the response body served to the front-end.
type League struct {
	Meta  Meta   `json:"meta"`
	Teams []Team `json:"teams"`
}

// Normalize flattens a raw league document. season is the one the resolver
// used, not anything read from the document.
func Normalize(doc Document, season int) League {
	members := MemberNames(doc)

	raw := doc.List("teams")
	teams := make([]Team, 0, len(raw))
	for i, it := range raw {
		m, _ := it.(map[string]any)
		teams = append(teams, normalizeTeam(Document(m), i+1, members))
	}

	return League{
		Meta: Meta{
			LeagueName: firstPresent(doc.Object("settings").Text("name"), DefaultLeagueName),
			Season:     season,
		},
		Teams: teams,
	}
}

// MemberNames maps member id to display name, falling back to first name and
// then DefaultMemberLabel. Members without an id are skipped.
func MemberNames(doc Document) map[string]string {
	list := objects(doc.List("members"))
	out := make(map[string]string, len(list))
	for _, m := range list {
		id := m.Text("id")
		if id == "" {
			continue
		}
		out[id] = firstPresent(m.Text("displayName"), m.Text("firstName"), DefaultMemberLabel)
	}
	return out
}

func normalizeTeam(t Document, pos int, members map[string]string) Team {
	return Team{
		ID:    t.ID(),
		Name:  teamName(t, pos),
		Logo:  logo(t),
		Owner: ownerName(t, members),
	}
}

// teamName prefers "location nickname" (both required), then name, then a
// placeholder built from the id. A team without an id is labelled by its
// 1-based position in the teams list.
func teamName(t Document, pos int) string {
	loc, nick := t.Text("location"), t.Text("nickname")
	if loc != "" && nick != "" {
		return loc + " " + nick
	}
	if name := t.Text("name"); name != "" {
		return name
	}
	if id := t.Text("id"); id != "" {
		return "Team " + id
	}
	return "Team #" + strconv.Itoa(pos)
}

func logo(t Document) *string {
	if l := t.Text("logo"); l != "" {
		return &l
	}
	return nil
}

// ownerName looks up the primary owner, then the first listed owner.
func ownerName(t Document, members map[string]string) string {
	if name := members[t.Text("primaryOwner")]; name != "" {
		return name
	}
	if owners := t.List("owners"); len(owners) > 0 {
		return members[text(owners[0])]
	}
	return ""
}
