package textnorm

// emojiNames maps emoji glyphs to the words they are replaced with.
// Glyphs outside the table are dropped like any other symbol.
var emojiNames = map[rune]string{
	'😀': "grinning face",
	'😂': "tears joy",
	'🙂': "smiling face",
	'😊': "smiling eyes",
	'😍': "heart eyes",
	'🙏': "folded hands",
	'👍': "thumbs",
	'👎': "thumbs down",
	'👏': "clapping hands",
	'💪': "flexed biceps",
	'🎉': "party popper",
	'❤': "red heart",
	'💔': "broken heart",
	'😢': "crying face",
	'😭': "loudly crying face",
	'😡': "angry face",
	'😠': "angry face",
	'🤬': "cursing face",
	'😱': "screaming fear",
	'😨': "fearful face",
	'😰': "anxious face",
	'😞': "disappointed face",
	'😔': "pensive face",
	'🔥': "fire",
	'💣': "bomb",
	'💥': "collision",
	'🔫': "pistol",
	'🗡': "dagger",
	'⚔': "crossed swords",
	'💀': "skull",
	'☠': "skull crossbones",
	'🚨': "police light",
	'🚓': "police car",
	'🚑': "ambulance",
	'⚠': "warning",
	'🛑': "stop sign",
	'🕊': "dove",
	'☮': "peace symbol",
	'✌': "victory hand",
	'🤝': "handshake",
	'🏳': "white flag",
	'✊': "raised fist",
}
