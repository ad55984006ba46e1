package nv12

// FillGradient writes a synthetic moving-gradient test pattern into a
// flat NV12 buffer. seq shifts the pattern so consecutive frames differ,
// which keeps encoders from collapsing a sequence into identical output.
// The buffer must hold at least FrameSize(width, height) bytes.
func FillGradient(buf []byte, width, height, seq int) {
	y := buf[:width*height]
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			y[row*width+col] = byte((col + row + seq*2) % 256)
		}
	}

	uv := buf[width*height : FrameSize(width, height)]
	for row := 0; row < height/2; row++ {
		for col := 0; col < width/2; col++ {
			uv[row*width+col*2] = byte((col + seq) % 256)
			uv[row*width+col*2+1] = byte((row + seq) % 256)
		}
	}
}
