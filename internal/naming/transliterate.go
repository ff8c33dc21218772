package naming

import "fmt"

// pinyinTable covers about a hundred of the most frequent CJK characters seen in
// search queries. It is intentionally small: the goal is a stable, readable
// slug, not a complete dictionary. Anything missing falls back to a
// deterministic syllable derived from the rune's code point, which keeps the
// slug stable across calls without requiring a full transliteration library.
var pinyinTable = map[rune]string{
	'人': "ren", '工': "gong", '智': "zhi", '能': "neng", '视': "shi", '频': "pin",
	'中': "zhong", '国': "guo", '学': "xue", '习': "xi", '机': "ji", '器': "qi",
	'语': "yu", '言': "yan", '模': "mo", '型': "xing", '新': "xin", '闻': "wen",
	'天': "tian", '气': "qi", '音': "yin", '乐': "le", '电': "dian", '影': "ying",
	'游': "you", '戏': "xi", '体': "ti", '育': "yu", '历': "li", '史': "shi",
	'科': "ke", '技': "ji", '网': "wang", '络': "luo", '生': "sheng", '活': "huo",
	'世': "shi", '界': "jie", '大': "da", '小': "xiao", '好': "hao", '多': "duo",
	'少': "shao", '高': "gao", '低': "di", '快': "kuai", '慢': "man", '北': "bei",
	'京': "jing", '上': "shang", '海': "hai", '广': "guang", '州': "zhou", '日': "ri",
	'本': "ben", '美': "mei", '法': "fa", '德': "de", '英': "ying", '文': "wen",
	'化': "hua", '数': "shu", '据': "ju", '编': "bian", '码': "ma", '程': "cheng",
	'序': "xu", '开': "kai", '发': "fa", '设': "she", '计': "ji", '图': "tu",
	'片': "pian", '动': "dong", '画': "hua", '公': "gong", '司': "si", '市': "shi",
	'场': "chang", '经': "jing", '济': "ji", '金': "jin", '融': "rong", '投': "tou",
	'资': "zi", '股': "gu", '票': "piao", '健': "jian", '康': "kang", '医': "yi",
	'院': "yuan", '药': "yao", '食': "shi", '品': "pin", '旅': "lv", '客': "ke",
}

// transliterate converts the ideographic runes in s to a sequence of
// whitespace-separated latin syllables; non-ideographic runes pass through
// unchanged so mixed CJK/Latin queries keep their latin portions intact.
func transliterate(s string) string {
	out := make([]rune, 0, len(s)*2)
	for _, r := range s {
		if !isCJK(r) {
			out = append(out, r)
			continue
		}
		syl, ok := pinyinTable[r]
		if !ok {
			syl = fallbackSyllable(r)
		}
		if len(out) > 0 && out[len(out)-1] != ' ' {
			out = append(out, ' ')
		}
		out = append(out, []rune(syl)...)
		out = append(out, ' ')
	}
	return string(out)
}

var fallbackInitials = []string{"b", "ch", "d", "f", "g", "h", "j", "k", "l", "m", "n", "p", "q", "r", "s", "sh", "t", "w", "x", "y", "z", "zh"}
var fallbackFinals = []string{"a", "ai", "an", "ang", "ao", "e", "en", "eng", "i", "ian", "iang", "iao", "ie", "in", "ing", "iu", "o", "ong", "ou", "u", "ua", "uan", "ui", "un", "uo"}

// fallbackSyllable deterministically derives a pinyin-shaped syllable from a
// rune's code point for characters absent from pinyinTable. It is not a
// correct transliteration, only a stable, path-safe stand-in.
func fallbackSyllable(r rune) string {
	n := int(r)
	initial := fallbackInitials[n%len(fallbackInitials)]
	final := fallbackFinals[(n/len(fallbackInitials))%len(fallbackFinals)]
	return fmt.Sprintf("%s%s", initial, final)
}
