package jsep_sdp

import (
	"github.com/pion/sdp/v3"
)

// HasAttribute проверяет наличие атрибута с указанным ключом
func HasAttribute(attrs []sdp.Attribute, key string) bool {
	for _, attr := range attrs {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// AttributeValues возвращает значения всех атрибутов с указанным ключом в порядке появления
func AttributeValues(attrs []sdp.Attribute, key string) []string {
	var values []string
	for _, attr := range attrs {
		if attr.Key == key {
			values = append(values, attr.Value)
		}
	}
	return values
}

// WithoutAttributes возвращает новый срез без атрибутов с указанными ключами
func WithoutAttributes(attrs []sdp.Attribute, keys ...string) []sdp.Attribute {
	result := make([]sdp.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		drop := false
		for _, key := range keys {
			if attr.Key == key {
				drop = true
				break
			}
		}
		if !drop {
			result = append(result, attr)
		}
	}
	return result
}

// ReplaceAttribute удаляет все атрибуты с ключом и добавляет один новый
func ReplaceAttribute(attrs []sdp.Attribute, key, value string) []sdp.Attribute {
	return append(WithoutAttributes(attrs, key), sdp.NewAttribute(key, value))
}

// HasMediaAttribute проверяет атрибут медиа секции
func HasMediaAttribute(md *sdp.MediaDescription, key string) bool {
	return HasAttribute(md.Attributes, key)
}

// RemoveMediaAttributes удаляет атрибуты медиа секции по ключам
func RemoveMediaAttributes(md *sdp.MediaDescription, keys ...string) {
	md.Attributes = WithoutAttributes(md.Attributes, keys...)
}

// SetMediaAttribute заменяет значение атрибута медиа секции
func SetMediaAttribute(md *sdp.MediaDescription, key, value string) {
	md.Attributes = ReplaceAttribute(md.Attributes, key, value)
}

// SetMediaFlag добавляет атрибут-флаг если его еще нет
func SetMediaFlag(md *sdp.MediaDescription, key string) {
	if !HasAttribute(md.Attributes, key) {
		md.Attributes = append(md.Attributes, sdp.NewPropertyAttribute(key))
	}
}

// SetSessionAttribute заменяет значение атрибута уровня сессии
func SetSessionAttribute(doc *sdp.SessionDescription, key, value string) {
	doc.Attributes = ReplaceAttribute(doc.Attributes, key, value)
}

// SetSessionFlag добавляет атрибут-флаг уровня сессии если его еще нет
func SetSessionFlag(doc *sdp.SessionDescription, key string) {
	if !HasAttribute(doc.Attributes, key) {
		doc.Attributes = append(doc.Attributes, sdp.NewPropertyAttribute(key))
	}
}
