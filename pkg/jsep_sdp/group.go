package jsep_sdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// SemanticBundle семантика a=group для BUNDLE
const SemanticBundle = "BUNDLE"

// BundleGroups возвращает списки mid из всех a=group:BUNDLE
func BundleGroups(doc *sdp.SessionDescription) [][]string {
	var groups [][]string
	for _, value := range AttributeValues(doc.Attributes, sdp.AttrKeyGroup) {
		fields := strings.Fields(value)
		if len(fields) < 2 || fields[0] != SemanticBundle {
			continue
		}
		groups = append(groups, fields[1:])
	}
	return groups
}

// SetBundleGroup заменяет a=group:BUNDLE; пустой список удаляет атрибут
func SetBundleGroup(doc *sdp.SessionDescription, mids []string) {
	doc.Attributes = WithoutAttributes(doc.Attributes, sdp.AttrKeyGroup)
	if len(mids) == 0 {
		return
	}
	doc.Attributes = append(doc.Attributes,
		sdp.NewAttribute(sdp.AttrKeyGroup, SemanticBundle+" "+strings.Join(mids, " ")))
}

// Extmap разобранная строка a=extmap
type Extmap struct {
	ID        int
	Direction string
	URI       string
}

// String формирует значение атрибута "<id>[/<dir>] <uri>"
func (e Extmap) String() string {
	id := strconv.Itoa(e.ID)
	if e.Direction != "" {
		id += "/" + e.Direction
	}
	return id + " " + e.URI
}

// Extmaps возвращает a=extmap секции
func Extmaps(md *sdp.MediaDescription) ([]Extmap, error) {
	var result []Extmap
	for _, value := range AttributeValues(md.Attributes, sdp.AttrKeyExtMap) {
		parsed := sdp.ExtMap{}
		if err := parsed.Unmarshal(sdp.AttrKeyExtMap + ":" + value); err != nil {
			return nil, fmt.Errorf("%w: extmap %q: %v", ErrMalformedAttribute, value, err)
		}

		entry := Extmap{ID: parsed.Value}
		if parsed.URI != nil {
			entry.URI = parsed.URI.String()
		}
		if idField := strings.Fields(value)[0]; strings.Contains(idField, "/") {
			entry.Direction = idField[strings.Index(idField, "/")+1:]
		}
		result = append(result, entry)
	}
	return result, nil
}

// AddExtmap добавляет a=extmap в секцию
func AddExtmap(md *sdp.MediaDescription, extmap Extmap) {
	md.Attributes = append(md.Attributes, sdp.NewAttribute(sdp.AttrKeyExtMap, extmap.String()))
}

// Rid строка a=rid:<id> <send|recv>
type Rid struct {
	ID        string
	Direction string
}

// Rids возвращает a=rid секции
func Rids(md *sdp.MediaDescription) []Rid {
	var result []Rid
	for _, value := range AttributeValues(md.Attributes, AttrKeyRid) {
		fields := strings.Fields(value)
		if len(fields) < 2 {
			continue
		}
		result = append(result, Rid{ID: fields[0], Direction: fields[1]})
	}
	return result
}

// AddRid добавляет a=rid
func AddRid(md *sdp.MediaDescription, rid Rid) {
	md.Attributes = append(md.Attributes, sdp.NewAttribute(AttrKeyRid, rid.ID+" "+rid.Direction))
}

// Simulcast читает a=simulcast:<send|recv> r1;r2
func Simulcast(md *sdp.MediaDescription) (direction string, rids []string, ok bool) {
	value, found := md.Attribute(AttrKeySimulcast)
	if !found {
		return "", nil, false
	}
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return "", nil, false
	}
	for _, alternative := range strings.Split(fields[1], ";") {
		// берем первый rid из списка альтернатив и отбрасываем признак паузы
		rid := strings.TrimPrefix(strings.Split(alternative, ",")[0], "~")
		if rid != "" {
			rids = append(rids, rid)
		}
	}
	return fields[0], rids, len(rids) > 0
}

// SetSimulcast записывает a=simulcast
func SetSimulcast(md *sdp.MediaDescription, direction string, rids []string) {
	SetMediaAttribute(md, AttrKeySimulcast, direction+" "+strings.Join(rids, ";"))
}
