package metadata

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/samber/lo"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/roster"
)

const UnknownTeam = "Unknown Team"

// identity correction applied to the timing data: the entry of the
// substituted driver is shown as the driver who raced the car.
const (
	substitutedName = "Franco Colapinto"
	substituteName  = "Jack Doohan"
	substituteCode  = "DOO"
)

// DriverIdentity is the resolved display data of a driver
type DriverIdentity struct {
	Number string
	Code   string
	Name   string
	Team   string
	Color  model.RGB
}

// ResolveDrivers resolves code, name, team and color for each driver of s.
// Drivers which only appear in the telemetry follow the session drivers
// ordered by number. Resolution never fails, missing data is replaced by
// fallbacks. Resolved codes are unique within the result.
func ResolveDrivers(s *model.Session, r *roster.Roster) []DriverIdentity {
	ret := make([]DriverIdentity, 0, len(s.Drivers))
	substituted := map[int]bool{}
	seen := map[string]bool{}
	add := func(d model.Driver) {
		seen[d.Number] = true
		id := DriverIdentity{
			Number: d.Number,
			Code:   d.Code,
			Name:   strings.TrimSpace(d.FirstName + " " + d.LastName),
		}
		if id.Name == substitutedName {
			id.Name = substituteName
			id.Code = substituteCode
			substituted[len(ret)] = true
		}
		if id.Code == "" {
			id.Code = d.Number
		}
		if id.Name == "" {
			id.Name = id.Code
		}
		ret = append(ret, id)
	}
	for _, d := range s.Drivers {
		if !seen[d.Number] {
			add(d)
		}
	}
	extra := []string{}
	for num := range s.Telemetry {
		if !seen[num] {
			extra = append(extra, num)
		}
	}
	sort.Strings(extra)
	for _, num := range extra {
		add(model.Driver{Number: num})
	}
	// roster entries are keyed by the timing code
	resolved := lo.Map(ret, func(id DriverIdentity, _ int) string { return id.Code })
	uniqueCodes(ret, substituted)

	upstream := make(map[string]model.Driver, len(s.Drivers))
	for _, d := range s.Drivers {
		if _, ok := upstream[d.Number]; !ok {
			upstream[d.Number] = d
		}
	}
	for i := range ret {
		d, ok := upstream[ret[i].Number]
		if !ok {
			d = model.Driver{Number: ret[i].Number}
		}
		ret[i].Team = resolveTeam(s, r, d, resolved[i])
		ret[i].Color = resolveColor(r, ret[i].Team, d.TeamColor, ret[i].Code)
	}
	return ret
}

// uniqueCodes makes the codes of ids distinct. The substituted driver keeps
// its code, otherwise the first driver with a code keeps it. Later drivers
// get their number appended.
func uniqueCodes(ids []DriverIdentity, keep map[int]bool) {
	taken := map[string]bool{}
	for i := range ids {
		if !keep[i] {
			continue
		}
		if taken[ids[i].Code] {
			delete(keep, i)
			continue
		}
		taken[ids[i].Code] = true
	}
	for i := range ids {
		if keep[i] {
			continue
		}
		code := ids[i].Code
		if taken[code] {
			code = ids[i].Code + ids[i].Number
			for n := 2; taken[code]; n++ {
				code = fmt.Sprintf("%s%s_%d", ids[i].Code, ids[i].Number, n)
			}
		}
		taken[code] = true
		ids[i].Code = code
	}
}

// Codes returns the resolved code by driver number
func Codes(ids []DriverIdentity) map[string]string {
	ret := make(map[string]string, len(ids))
	for _, id := range ids {
		ret[id.Number] = id.Code
	}
	return ret
}

// resolveTeam checks the roster, the most recent team entry in the laps of the
// driver and finally the team of the driver entry.
func resolveTeam(s *model.Session, r *roster.Roster, d model.Driver, code string) string {
	if r != nil {
		if team, ok := r.Team(s.Key.Year, code); ok {
			return team
		}
	}
	laps := s.LapsOf(d.Number)
	for i := len(laps) - 1; i >= 0; i-- {
		if team := strings.TrimSpace(laps[i].Team); team != "" {
			return team
		}
	}
	if team := strings.TrimSpace(d.TeamName); team != "" {
		return team
	}
	return UnknownTeam
}

func resolveColor(r *roster.Roster, team, upstream, code string) model.RGB {
	if r != nil {
		if hex, ok := r.TeamColor(team); ok {
			if c, ok := parseHex(hex); ok {
				return c
			}
		}
	}
	if c, ok := parseHex(upstream); ok {
		return c
	}
	return PaletteColor(code)
}

func parseHex(hex string) (model.RGB, bool) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return model.RGB{}, false
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return model.RGB{}, false
	}
	r, g, b := c.RGB255()
	return model.RGB{r, g, b}, true
}

// PaletteColor derives a stable color from a driver code
func PaletteColor(code string) model.RGB {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	sum := h.Sum32()
	hue := float64(sum % 360)
	sat := 0.55 + float64((sum>>9)%30)/100
	c := colorful.Hsv(hue, sat, 0.95)
	r, g, b := c.Clamped().RGB255()
	return model.RGB{r, g, b}
}
