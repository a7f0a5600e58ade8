package audio

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSampleWidth 表示采样位宽无法映射到播放格式。
var ErrUnsupportedSampleWidth = errors.New("unsupported sample width")

// Format 是原始 PCM 播放格式标签，取值与 aplay -f 参数一致。
type Format string

const (
	FormatU8    Format = "U8"     // 无符号 8 位
	FormatS16LE Format = "S16_LE" // 有符号 16 位小端
	FormatS32LE Format = "S32_LE" // 有符号 32 位小端
)

// FormatForWidth 将每个采样的字节数映射为播放格式。
// 只支持 1、2、4 字节，其余返回 ErrUnsupportedSampleWidth。
func FormatForWidth(width int) (Format, error) {
	switch width {
	case 1:
		return FormatU8, nil
	case 2:
		return FormatS16LE, nil
	case 4:
		return FormatS32LE, nil
	}
	return "", fmt.Errorf("%w: sample_width=%d", ErrUnsupportedSampleWidth, width)
}

// Width 返回格式对应的采样字节数，未知格式返回 0。
func (f Format) Width() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE:
		return 2
	case FormatS32LE:
		return 4
	}
	return 0
}
