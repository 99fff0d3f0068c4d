package jsep_codec

// DefaultH264ProfileLevelID используется, когда собеседник не указал profile-level-id
const DefaultH264ProfileLevelID uint32 = 0x420010

// h264Level1b значение уровня 1b в монотонной шкале SaneH264Level
const h264Level1b uint32 = 105

// Профили, у которых уровень 1b кодируется флагом constraint_set3 при level_idc=11
func isH264BaselineFamily(profileLevelID uint32) bool {
	switch profileLevelID >> 16 {
	case 0x42, 0x4D, 0x58:
		return true
	default:
		return false
	}
}

// SaneH264Level переводит profile-level-id в монотонную шкалу уровней.
// Уровень N.M соответствует N*100+M*10, уровень 1b лежит между 1.0 и 1.1.
func SaneH264Level(profileLevelID uint32) uint32 {
	if isH264BaselineFamily(profileLevelID) && profileLevelID&0x10FF == 0x100B {
		return h264Level1b
	}

	level := profileLevelID & 0xFF
	if level == 0x09 {
		return h264Level1b
	}
	return level * 10
}

// SetSaneH264Level записывает уровень из шкалы SaneH264Level в profile-level-id
func SetSaneH264Level(level, profileLevelID uint32) uint32 {
	if isH264BaselineFamily(profileLevelID) {
		profileLevelID &^= 0x10FF
		if level == h264Level1b {
			return profileLevelID | 0x100B
		}
		return profileLevelID | level/10
	}

	profileLevelID &^= 0xFF
	if level == h264Level1b {
		return profileLevelID | 0x09
	}
	return profileLevelID | level/10
}

// H264Subprofile возвращает profile_idc и флаги ограничений без признака уровня 1b
func H264Subprofile(profileLevelID uint32) uint32 {
	subprofile := profileLevelID & 0xFFFF00
	if isH264BaselineFamily(profileLevelID) && profileLevelID&0xFF == 0x0B {
		subprofile &^= 0x1000
	}
	return subprofile
}

// minH264Level возвращает меньший из двух уровней в шкале SaneH264Level
func minH264Level(a, b uint32) uint32 {
	la, lb := SaneH264Level(a), SaneH264Level(b)
	if la < lb {
		return la
	}
	return lb
}
