package opengl

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
)

type Buffer struct {
	ID     uint32
	Target uint32
	Size   int

	r *Renderer
}

// CreateBuffer uploads data into a new buffer object bound to target
// (gl.ARRAY_BUFFER, gl.ELEMENT_ARRAY_BUFFER, gl.UNIFORM_BUFFER...).
func (r *Renderer) CreateBuffer(target, usage uint32, data []byte) *Buffer {
	b := &Buffer{Target: target, Size: len(data), r: r}
	gl.GenBuffers(1, &b.ID)
	gl.BindBuffer(target, b.ID)
	if len(data) > 0 {
		gl.BufferData(target, len(data), gl.Ptr(data), usage)
	}
	r.live++
	return b
}

// Update replaces the contents starting at offset.
func (b *Buffer) Update(offset int, data []byte) error {
	if offset+len(data) > b.Size {
		return fmt.Errorf("buffer update of %d bytes at %d overflows %d", len(data), offset, b.Size)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(b.Target, b.ID)
	gl.BufferSubData(b.Target, offset, len(data), gl.Ptr(data))
	return nil
}

func (b *Buffer) Bind() {
	gl.BindBuffer(b.Target, b.ID)
}

func (b *Buffer) Destroy() {
	if b == nil || b.ID == 0 {
		return
	}
	gl.DeleteBuffers(1, &b.ID)
	b.ID = 0
	b.r.live--
}

type Texture struct {
	ID            uint32
	Width, Height int32

	r *Renderer
}

// CreateTexture uploads tightly packed RGBA8 pixels and builds the mip chain.
func (r *Renderer) CreateTexture(width, height int32, rgba []byte) (*Texture, error) {
	if int(width)*int(height)*4 != len(rgba) {
		return nil, fmt.Errorf("texture %dx%d needs %d bytes, got %d", width, height, width*height*4, len(rgba))
	}
	t := &Texture{Width: width, Height: height, r: r}
	gl.GenTextures(1, &t.ID)
	gl.BindTexture(gl.TEXTURE_2D, t.ID)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, width, height, 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	r.live++
	return t, nil
}

func (t *Texture) Bind(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, t.ID)
}

func (t *Texture) Destroy() {
	if t == nil || t.ID == 0 {
		return
	}
	gl.DeleteTextures(1, &t.ID)
	t.ID = 0
	t.r.live--
}

type Program struct {
	ID       uint32
	uniforms map[string]int32

	r *Renderer
}

// CreateProgram compiles and links a vertex/fragment pair. Compile and link
// logs are returned in the error.
func (r *Renderer) CreateProgram(vertexSrc, fragmentSrc string) (*Program, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(fs)

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(id, logLength, nil, gl.Str(log))
		gl.DeleteProgram(id)
		err := fmt.Errorf("failed to link program: %s", strings.TrimRight(log, "\x00"))
		core.LogError(err.Error())
		return nil, err
	}
	gl.DetachShader(id, vs)
	gl.DetachShader(id, fs)
	r.live++
	return &Program{ID: id, uniforms: make(map[string]int32), r: r}, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		err := fmt.Errorf("failed to compile: %s", strings.TrimRight(log, "\x00"))
		core.LogError(err.Error())
		return 0, err
	}
	return shader, nil
}

func (p *Program) Use() {
	gl.UseProgram(p.ID)
}

// Uniform returns the cached location of name, -1 when the program does not use it.
func (p *Program) Uniform(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.ID, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

func (p *Program) SetMat4(name string, m mgl32.Mat4) {
	gl.UniformMatrix4fv(p.Uniform(name), 1, false, &m[0])
}

func (p *Program) SetInt(name string, v int32) {
	gl.Uniform1i(p.Uniform(name), v)
}

func (p *Program) Destroy() {
	if p == nil || p.ID == 0 {
		return
	}
	gl.DeleteProgram(p.ID)
	p.ID = 0
	p.r.live--
}

// VertexAttrib describes one float attribute inside an interleaved vertex.
type VertexAttrib struct {
	Location   uint32
	Components int32
	Offset     uintptr
}

type VertexArray struct {
	ID uint32

	r *Renderer
}

// CreateVertexArray records the attribute layout of vertices (and the
// optional index buffer) into a new vertex array object.
func (r *Renderer) CreateVertexArray(vertices *Buffer, indices *Buffer, stride int32, attribs []VertexAttrib) *VertexArray {
	va := &VertexArray{r: r}
	gl.GenVertexArrays(1, &va.ID)
	gl.BindVertexArray(va.ID)
	vertices.Bind()
	for _, a := range attribs {
		gl.EnableVertexAttribArray(a.Location)
		gl.VertexAttribPointerWithOffset(a.Location, a.Components, gl.FLOAT, false, stride, a.Offset)
	}
	if indices != nil {
		indices.Bind()
	}
	gl.BindVertexArray(0)
	r.live++
	return va
}

func (va *VertexArray) Bind() {
	gl.BindVertexArray(va.ID)
}

// DrawIndexed draws count uint32 indices as triangles.
func (va *VertexArray) DrawIndexed(count int32) {
	gl.BindVertexArray(va.ID)
	gl.DrawElements(gl.TRIANGLES, count, gl.UNSIGNED_INT, nil)
}

func (va *VertexArray) Destroy() {
	if va == nil || va.ID == 0 {
		return
	}
	gl.DeleteVertexArrays(1, &va.ID)
	va.ID = 0
	va.r.live--
}
