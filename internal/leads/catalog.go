package leads

import (
	"sort"
	"strings"
	"unicode"
)

type Status string

const (
	StatusNew              Status = "new"
	StatusAwaitingOutreach Status = "awaiting_outreach"
	StatusLowEngagement    Status = "low_engagement"
	StatusHighInterest     Status = "high_interest"
	StatusConverted        Status = "converted"
	StatusClosed           Status = "closed"
)

var Statuses = []Status{
	StatusNew,
	StatusAwaitingOutreach,
	StatusLowEngagement,
	StatusHighInterest,
	StatusConverted,
	StatusClosed,
}

type Room string

const (
	RoomSilver      Room = "silver"
	RoomGold        Room = "gold"
	RoomPlatinum    Room = "platinum"
	RoomRhodium     Room = "rhodium"
	RoomRhodiumPlus Room = "rhodium_plus"
)

type Duration string

const (
	Duration51Weeks   Duration = "51_weeks"
	Duration45Weeks   Duration = "45_weeks"
	DurationShortStay Duration = "short_stay"
)

const (
	DefaultStatus   = StatusNew
	DefaultRoom     = RoomSilver
	DefaultDuration = Duration51Weeks
	DefaultSource   = "other"
)

// Weekly rent per room grade, in whole currency units.
var roomWeeklyPrice = map[Room]int64{
	RoomSilver:      180,
	RoomGold:        200,
	RoomPlatinum:    220,
	RoomRhodium:     240,
	RoomRhodiumPlus: 265,
}

var durationWeeks = map[Duration]int64{
	Duration51Weeks:   51,
	Duration45Weeks:   45,
	DurationShortStay: 4,
}

var statusAliases = map[string]Status{
	"new":               StatusNew,
	"new lead":          StatusNew,
	"fresh":             StatusNew,
	"awaiting outreach": StatusAwaitingOutreach,
	"awaiting":          StatusAwaitingOutreach,
	"pending":           StatusAwaitingOutreach,
	"to contact":        StatusAwaitingOutreach,
	"low engagement":    StatusLowEngagement,
	"low":               StatusLowEngagement,
	"cold":              StatusLowEngagement,
	"no response":       StatusLowEngagement,
	"high interest":     StatusHighInterest,
	"high":              StatusHighInterest,
	"hot":               StatusHighInterest,
	"warm":              StatusHighInterest,
	"interested":        StatusHighInterest,
	"converted":         StatusConverted,
	"booked":            StatusConverted,
	"won":               StatusConverted,
	"signed":            StatusConverted,
	"closed":            StatusClosed,
	"lost":              StatusClosed,
	"dead":              StatusClosed,
	"not interested":    StatusClosed,
	"cancelled":         StatusClosed,
	"canceled":          StatusClosed,
}

var roomAliases = map[string]Room{
	"silver":        RoomSilver,
	"silver room":   RoomSilver,
	"standard":      RoomSilver,
	"gold":          RoomGold,
	"gold room":     RoomGold,
	"platinum":      RoomPlatinum,
	"platinum room": RoomPlatinum,
	"rhodium":       RoomRhodium,
	"rhodium room":  RoomRhodium,
	"rhodium plus":  RoomRhodiumPlus,
	"rhodium+":      RoomRhodiumPlus,
}

var durationAliases = map[string]Duration{
	"51 weeks":   Duration51Weeks,
	"51 week":    Duration51Weeks,
	"51":         Duration51Weeks,
	"full year":  Duration51Weeks,
	"45 weeks":   Duration45Weeks,
	"45 week":    Duration45Weeks,
	"45":         Duration45Weeks,
	"short stay": DurationShortStay,
	"short":      DurationShortStay,
	"summer":     DurationShortStay,
}

var sourceAliases = map[string]string{
	"web":          "website",
	"site":         "website",
	"google":       "google_ads",
	"ppc":          "google_ads",
	"adwords":      "google_ads",
	"instagram":    "social_media",
	"facebook":     "social_media",
	"tiktok":       "social_media",
	"social":       "social_media",
	"walkin":       "walk_in",
	"phone":        "phone_call",
	"call":         "phone_call",
	"telephone":    "phone_call",
	"refer":        "referral",
	"friend":       "referral",
	"e_mail":       "email",
	"whats_app":    "whatsapp",
	"key_worker":   "keyworker",
	"agent":        "agent",
	"agency":       "agent",
	"student_room": "website",
}

// Longest aliases first so prefix matching is deterministic.
var sourceAliasPrefixes = func() []string {
	keys := make([]string, 0, len(sourceAliases))
	for alias := range sourceAliases {
		keys = append(keys, alias)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) == len(keys[j]) {
			return keys[i] < keys[j]
		}
		return len(keys[i]) > len(keys[j])
	})
	return keys
}()

// MapStatus never fails: unknown text yields DefaultStatus.
func MapStatus(raw string) Status {
	key := normalizeKey(raw)
	if status, ok := statusAliases[key]; ok {
		return status
	}
	return DefaultStatus
}

func MapRoom(raw string) Room {
	if room, ok := roomAliases[normalizeKey(raw)]; ok {
		return room
	}
	return DefaultRoom
}

func MapDuration(raw string) Duration {
	if duration, ok := durationAliases[normalizeKey(raw)]; ok {
		return duration
	}
	return DefaultDuration
}

func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.TrimSpace(raw))
	for _, status := range Statuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

func ValidRoom(raw string) bool {
	_, ok := roomWeeklyPrice[Room(raw)]
	return ok
}

func ValidDuration(raw string) bool {
	_, ok := durationWeeks[Duration(raw)]
	return ok
}

// PotentialRevenue is 0 unless status is converted. A positive override
// (explicit revenue from the caller) wins over the pricing table.
func PotentialRevenue(status Status, room Room, duration Duration, override int64) int64 {
	if status != StatusConverted {
		return 0
	}
	if override > 0 {
		return override
	}
	price, ok := roomWeeklyPrice[room]
	if !ok {
		price = roomWeeklyPrice[DefaultRoom]
	}
	weeks, ok := durationWeeks[duration]
	if !ok {
		weeks = durationWeeks[DefaultDuration]
	}
	return price * weeks
}

// SourceMapper maps free-text lead sources onto the active source slugs.
type SourceMapper struct {
	active   map[string]struct{}
	fallback string
}

func NewSourceMapper(activeSlugs []string) SourceMapper {
	active := make(map[string]struct{}, len(activeSlugs))
	sorted := make([]string, 0, len(activeSlugs))
	for _, slug := range activeSlugs {
		slug = strings.TrimSpace(slug)
		if slug == "" {
			continue
		}
		if _, seen := active[slug]; !seen {
			sorted = append(sorted, slug)
		}
		active[slug] = struct{}{}
	}
	sort.Strings(sorted)

	fallback := DefaultSource
	if _, ok := active[DefaultSource]; !ok && len(sorted) > 0 {
		fallback = sorted[0]
	}
	return SourceMapper{active: active, fallback: fallback}
}

func (m SourceMapper) Map(raw string) string {
	key := slugify(raw)
	if key == "" {
		return m.fallback
	}
	if _, ok := m.active[key]; ok {
		return key
	}
	if target, ok := sourceAliases[key]; ok {
		if _, active := m.active[target]; active {
			return target
		}
	}
	for _, alias := range sourceAliasPrefixes {
		if strings.HasPrefix(key, alias+"_") {
			target := sourceAliases[alias]
			if _, active := m.active[target]; active {
				return target
			}
		}
	}
	return m.fallback
}

func (m SourceMapper) Default() string {
	return m.fallback
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.NewReplacer("-", " ", "_", " ").Replace(lowered)
	return strings.Join(strings.Fields(lowered), " ")
}

func slugify(raw string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
