package keyword

// stoplist rejects generic tokens too common to be useful search keywords.
// Small and curated by hand, matching the teacher's preference for compact
// inline tables (see naming.pinyinTable) over pulling in an NLP stop-word
// package for a list this short.
var stoplist = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "for": true, "with": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "as": true, "at": true, "by": true, "from": true, "into": true,
	"about": true, "video": true, "channel": true, "subscribe": true,
	"like": true, "comment": true, "today": true, "guys": true, "thing": true,
	"things": true, "stuff": true, "really": true, "just": true, "very": true,
	"我们": true, "这个": true, "那个": true, "视频": true, "大家": true,
	"一下": true, "就是": true, "然后": true, "因为": true, "所以": true,
	"今天": true, "大家好": true, "谢谢": true, "可以": true, "一个": true,
}
