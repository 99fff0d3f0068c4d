package jsep_codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSaneH264Level проверяет перевод profile-level-id в монотонную шкалу
func TestSaneH264Level(t *testing.T) {
	tests := []struct {
		profileLevelID uint32
		expected       uint32
	}{
		{0x42e00d, 130},
		{0x42e01f, 310},
		{0x42e00b, 110},
		{0x42f00b, h264Level1b},
		{0x4d100b, h264Level1b},
		{0x640009, h264Level1b},
		{0x64001f, 310},
		{0x640033, 510},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%06x", tt.profileLevelID), func(t *testing.T) {
			assert.Equal(t, tt.expected, SaneH264Level(tt.profileLevelID))
		})
	}

	// 1b должен лежать между 1.0 и 1.1
	assert.Less(t, SaneH264Level(0x42e00a), SaneH264Level(0x42f00b))
	assert.Less(t, SaneH264Level(0x42f00b), SaneH264Level(0x42e00b))
}

// TestSetSaneH264Level проверяет обратную запись уровня в profile-level-id
func TestSetSaneH264Level(t *testing.T) {
	tests := []struct {
		name           string
		level          uint32
		profileLevelID uint32
		expected       uint32
	}{
		{"baseline to 1b", h264Level1b, 0x42e01f, 0x42f00b},
		{"baseline from 1b", 310, 0x42f00b, 0x42e01f},
		{"baseline lower", 130, 0x42e01f, 0x42e00d},
		{"high to 1b", h264Level1b, 0x64001f, 0x640009},
		{"high from 1b", 310, 0x640009, 0x64001f},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SetSaneH264Level(tt.level, tt.profileLevelID)
			assert.Equal(t, tt.expected, result, "got %06x", result)
			assert.Equal(t, tt.level, SaneH264Level(result))
		})
	}
}

// TestH264Subprofile проверяет что признак 1b не влияет на сравнение профилей
func TestH264Subprofile(t *testing.T) {
	assert.Equal(t, H264Subprofile(0x42e01f), H264Subprofile(0x42f00b))
	assert.Equal(t, uint32(0x42e000), H264Subprofile(0x42e00d))
	assert.NotEqual(t, H264Subprofile(0x42e01f), H264Subprofile(0x4d001f))
	assert.Equal(t, uint32(130), minH264Level(0x42e00d, 0x42e01f))
}

// TestSaneH264LevelOrder проверяет порядок 1.0 < 1b < 1.1 для сырых значений
func TestSaneH264LevelOrder(t *testing.T) {
	level10 := SaneH264Level(0x420D0A)
	level1b := SaneH264Level(0x421D0B)
	level11 := SaneH264Level(0x420D0B)

	assert.Less(t, level10, level1b)
	assert.Less(t, level1b, level11)
	assert.Greater(t, uint32(0x421D0B), uint32(0x420D0B), "raw values are not monotonic")
}
