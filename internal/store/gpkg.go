package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"

	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 0x000027D9 // 10201
)

var gpkgInitialSQL = fmt.Sprintf(`
	PRAGMA application_id = %d;
	PRAGMA user_version = %d;
	PRAGMA foreign_keys = ON;
	`,
	gpkgApplicationID,
	gpkgUserVersion,
)

// Content is one row of gpkg_contents, kept for every tile table.
type Content struct {
	ContentTableName string     `sql:"type:text" gorm:"column:table_name;unique;not null;primary_key"`
	DataType         string     `sql:"type:text" gorm:"column:data_type;not null"`
	Identifier       string     `sql:"type:text" gorm:"column:identifier;unique"`
	Description      string     `sql:"type:text" gorm:"column:description;default:''"`
	LastChange       *time.Time `gorm:"column:last_change;not null"`
	SrsId            int        `sql:"type:integer REFERENCES gpkg_spatial_ref_sys(srs_id)" gorm:"column:srs_id"`
}

func (Content) TableName() string {
	return "gpkg_contents"
}

// SpatialReferenceSystem is one row of gpkg_spatial_ref_sys.
type SpatialReferenceSystem struct {
	Name          string `gorm:"column:srs_name;not null"`
	SrsId         int    `gorm:"column:srs_id;unique;not null;primary_key"`
	Organization  string `gorm:"column:organization;not null"`
	OrgCoordsysId int    `gorm:"column:organization_coordsys_id;not null"`
	Definition    string `gorm:"column:definition;not null"`
	Description   string `gorm:"column:description"`
}

func (SpatialReferenceSystem) TableName() string {
	return "gpkg_spatial_ref_sys"
}

// The registry is trimmed to what this tool stores: mercator sources at
// 3857 and cube-face tiles, which have no EPSG code and use the reserved
// "undefined cartesian" id -1.
var knownSRS = []SpatialReferenceSystem{
	{Name: "Undefined cartesian SRS", SrsId: -1, Organization: "NONE", OrgCoordsysId: -1, Definition: "undefined", Description: "cube face grid"},
	{Name: "WGS 84 / Pseudo-Mercator", SrsId: 3857, Organization: "EPSG", OrgCoordsysId: 3857, Definition: "undefined", Description: "web mercator"},
}

// SRSCubeFace is the srs_id recorded for cube-face tile tables.
const SRSCubeFace = -1

// GeoPackage wraps a sqlite tile container. Tile tables use the standard
// zoom_level/tile_column/tile_row/tile_data layout.
type GeoPackage struct {
	Uri string
	DB  *gorm.DB
}

// OpenGeoPackage opens an existing container.
func OpenGeoPackage(uri string) (*GeoPackage, error) {
	if !(FS{}).Exists(uri) {
		return nil, errors.Errorf("geopackage %s does not exist", uri)
	}
	db, err := gorm.Open("sqlite3", uri)
	if err != nil {
		return nil, errors.Wrap(err, "opening geopackage")
	}
	// sqlite allows one writer at a time.
	db.DB().SetMaxOpenConns(1)
	return &GeoPackage{Uri: uri, DB: db}, nil
}

// CreateGeoPackage opens or creates a container, applying the GPKG
// pragmas and bookkeeping tables on the way.
func CreateGeoPackage(uri string) (*GeoPackage, error) {
	db, err := gorm.Open("sqlite3", uri)
	if err != nil {
		return nil, errors.Wrap(err, "creating geopackage")
	}
	db.DB().SetMaxOpenConns(1)

	if err = db.Exec(gpkgInitialSQL).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying gpkg pragmas")
	}
	if err = db.AutoMigrate(SpatialReferenceSystem{}).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating gpkg_spatial_ref_sys")
	}
	if err = db.AutoMigrate(Content{}).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating gpkg_contents")
	}
	for _, srs := range knownSRS {
		err = db.Where(SpatialReferenceSystem{SrsId: srs.SrsId}).FirstOrCreate(&srs).Error
		if err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "registering srs %d", srs.SrsId)
		}
	}
	return &GeoPackage{Uri: uri, DB: db}, nil
}

func (g *GeoPackage) Close() error {
	return g.DB.Close()
}

// AddTilesTable creates a tile table plus its contents row if missing.
func (g *GeoPackage) AddTilesTable(table string, srsId int) error {
	const createTilesTableSQL = `
	CREATE TABLE IF NOT EXISTS "%v"
	(id          INTEGER PRIMARY KEY AUTOINCREMENT,
	 zoom_level  INTEGER NOT NULL,
	 tile_column INTEGER NOT NULL,
	 tile_row    INTEGER NOT NULL,
	 tile_data   BLOB    NOT NULL,
	 UNIQUE (zoom_level, tile_column, tile_row))
	`
	if _, err := g.DB.DB().Exec(fmt.Sprintf(createTilesTableSQL, table)); err != nil {
		return errors.Wrapf(err, "creating tile table %s", table)
	}

	now := time.Now()
	content := Content{
		ContentTableName: table,
		DataType:         "tiles",
		Identifier:       table,
		LastChange:       &now,
		SrsId:            srsId,
	}
	err := g.DB.Where(Content{ContentTableName: table}).FirstOrCreate(&content).Error
	return errors.Wrapf(err, "registering tile table %s", table)
}

// GetTile returns the stored blob for (z, x, y), or nil when absent.
func (g *GeoPackage) GetTile(table string, z, x, y int) ([]byte, error) {
	stmt := fmt.Sprintf("SELECT tile_data FROM [%s] WHERE zoom_level = ? AND tile_column = ? AND tile_row = ? LIMIT 1;", table)
	rows, err := g.DB.DB().Query(stmt, z, x, y)
	if err != nil {
		return nil, errors.Wrap(err, "querying tile")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var b []byte
	if err = rows.Scan(&b); err != nil {
		return nil, errors.Wrap(err, "scanning tile data")
	}
	return b, nil
}

// HasTile reports whether a tile row exists without fetching its blob.
func (g *GeoPackage) HasTile(table string, z, x, y int) (bool, error) {
	stmt := fmt.Sprintf("SELECT count(*) FROM [%s] WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?", table)
	var count int
	if err := g.DB.DB().QueryRow(stmt, z, x, y).Scan(&count); err != nil {
		return false, errors.Wrap(err, "counting tiles")
	}
	return count > 0, nil
}

// StoreTile inserts or replaces the blob at (z, x, y).
func (g *GeoPackage) StoreTile(table string, z, x, y int, data []byte) error {
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO [%s] (zoom_level, tile_column, tile_row, tile_data) VALUES (?,?,?,?)", table)
	_, err := g.DB.DB().Exec(stmt, z, x, y, data)
	return errors.Wrap(err, "storing tile")
}

// GPKGSource reads source mercator tiles out of one GeoPackage table.
type GPKGSource struct {
	g     *GeoPackage
	Table string
}

func NewGPKGSource(g *GeoPackage, table string) *GPKGSource {
	return &GPKGSource{g: g, Table: table}
}

func (s *GPKGSource) ReadTile(zoom, x, y int) (*tile.Raster, tile.Metadata, error) {
	data, err := s.g.GetTile(s.Table, zoom, x, y)
	if err != nil {
		return nil, tile.Metadata{}, err
	}
	if len(data) == 0 {
		return nil, tile.Metadata{}, nil
	}
	return tile.DecodePNG(data)
}

// GPKGOutput mirrors built cube tiles into per-face tables face_0..face_5.
type GPKGOutput struct {
	g *GeoPackage
}

func NewGPKGOutput(g *GeoPackage) (*GPKGOutput, error) {
	for face := 0; face < tile.NumFaces; face++ {
		if err := g.AddTilesTable(faceTable(face), SRSCubeFace); err != nil {
			return nil, err
		}
	}
	return &GPKGOutput{g: g}, nil
}

func faceTable(face int) string {
	return fmt.Sprintf("face_%d", face)
}

func (o *GPKGOutput) Exists(d tile.Descriptor) bool {
	ok, err := o.g.HasTile(faceTable(d.Face), d.Zoom, d.X, d.Y)
	return err == nil && ok
}

func (o *GPKGOutput) WriteTile(d tile.Descriptor, r *tile.Raster, meta tile.Metadata) error {
	var buf bytes.Buffer
	if err := tile.EncodePNG(&buf, r, meta); err != nil {
		return errors.Wrap(err, "encoding tile")
	}
	return o.g.StoreTile(faceTable(d.Face), d.Zoom, d.X, d.Y, buf.Bytes())
}
