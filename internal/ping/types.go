package ping

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Well-known status ports per edition.
const (
	DefaultJavaPort    uint16 = 25565
	DefaultBedrockPort uint16 = 19132
)

// Edition selects which status protocol a target speaks. The payload
// variant on a result is always the one the target declared; it is never
// inferred from the response bytes.
type Edition string

const (
	EditionJava    Edition = "java"
	EditionBedrock Edition = "bedrock"
)

// ParseEdition parses an edition name case-insensitively.
func ParseEdition(s string) (Edition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(EditionJava):
		return EditionJava, nil
	case string(EditionBedrock):
		return EditionBedrock, nil
	default:
		return "", newError(KindInvalidEdition, "parse edition", s, fmt.Errorf("unknown edition %q", s))
	}
}

// DefaultPort returns the edition's well-known status port.
func (e Edition) DefaultPort() uint16 {
	if e == EditionBedrock {
		return DefaultBedrockPort
	}
	return DefaultJavaPort
}

// Target is one server to query.
type Target struct {
	Address string  `json:"address"`
	Edition Edition `json:"edition"`
}

// Outcome pairs a target with its ping result. Exactly one of Status and
// Err is set.
type Outcome struct {
	Target Target
	Status *StatusResult
	Err    error
}

// MarshalJSON flattens the error into kind and message fields so outcomes
// can be returned directly from API handlers.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type outcomeError struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}
	shadow := struct {
		Target Target        `json:"target"`
		Status *StatusResult `json:"status,omitempty"`
		Error  *outcomeError `json:"error,omitempty"`
	}{Target: o.Target, Status: o.Status}
	if o.Err != nil {
		shadow.Error = &outcomeError{Kind: KindOf(o.Err), Message: o.Err.Error()}
	}
	return json.Marshal(shadow)
}

// DNSInfo describes how a target's hostname resolved. TTL is the cache
// lifetime in seconds, not the authoritative record TTL.
type DNSInfo struct {
	ARecords []string `json:"a_records"`
	CNAME    string   `json:"cname,omitempty"`
	TTL      uint32   `json:"ttl"`
}

// StatusResult is the normalized answer for one reachable server. Exactly
// one of Java and Bedrock is set, matching the target's edition.
type StatusResult struct {
	Online    bool           `json:"online"`
	IP        string         `json:"ip"`
	Port      uint16         `json:"port"`
	Hostname  string         `json:"hostname"`
	LatencyMs float64        `json:"latency_ms"`
	DNS       *DNSInfo       `json:"dns,omitempty"`
	Java      *JavaStatus    `json:"java,omitempty"`
	Bedrock   *BedrockStatus `json:"bedrock,omitempty"`
}

// PlayerSample is one entry of the Java player sample list.
type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// JavaPlugin is one plugin advertised by a Java server.
type JavaPlugin struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// JavaMod is one mod advertised by a modded Java server.
type JavaMod struct {
	ModID   string `json:"modid"`
	Version string `json:"version,omitempty"`
}

// JavaStatus is the decoded Java edition status document. Raw retains the
// full parsed JSON tree for consumers that need fields outside the
// normalized set; it is not serialized, and neither is the favicon.
type JavaStatus struct {
	Version       string                 `json:"version"`
	Protocol      int                    `json:"protocol"`
	OnlinePlayers int                    `json:"online_players"`
	MaxPlayers    int                    `json:"max_players"`
	Sample        []PlayerSample         `json:"sample,omitempty"`
	Description   string                 `json:"description"`
	Favicon       string                 `json:"-"`
	Map           string                 `json:"map,omitempty"`
	GameMode      string                 `json:"gamemode,omitempty"`
	Software      string                 `json:"software,omitempty"`
	Plugins       []JavaPlugin           `json:"plugins,omitempty"`
	Mods          []JavaMod              `json:"mods,omitempty"`
	Raw           map[string]interface{} `json:"-"`
}

// BedrockStatus is the decoded Bedrock edition status payload. Fields keep
// the wire's string form; positions missing from the payload are empty.
type BedrockStatus struct {
	Edition         string `json:"edition"`
	MOTD            string `json:"motd"`
	ProtocolVersion string `json:"protocol_version"`
	Version         string `json:"version"`
	OnlinePlayers   string `json:"online_players"`
	MaxPlayers      string `json:"max_players"`
	ServerUID       string `json:"server_uid,omitempty"`
	MOTD2           string `json:"motd2,omitempty"`
	GameMode        string `json:"gamemode,omitempty"`
	GameModeNumeric string `json:"gamemode_numeric,omitempty"`
	PortV4          string `json:"port_v4,omitempty"`
	PortV6          string `json:"port_v6,omitempty"`
	Map             string `json:"map,omitempty"`
	Software        string `json:"software,omitempty"`
	Raw             string `json:"-"`
}

// SaveFavicon decodes the favicon data URI and writes the image to path.
func (j *JavaStatus) SaveFavicon(path string) error {
	if j == nil || j.Favicon == "" {
		return newError(KindInvalidResponse, "save favicon", path, fmt.Errorf("status has no favicon"))
	}
	_, encoded, found := strings.Cut(j.Favicon, ",")
	if !found {
		return newError(KindInvalidResponse, "save favicon", path, fmt.Errorf("favicon is not a data uri"))
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return newError(KindBase64, "save favicon", path, err)
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		return newError(KindIO, "save favicon", path, err)
	}
	return nil
}
